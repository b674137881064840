package delivery

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/heraldlabs/herald/pkg/async"
	"github.com/heraldlabs/herald/pkg/logger"
)

// BulkRequest is a group of notifications submitted together. Notifications
// within a batch fire concurrently; batches are separated by a configurable
// delay so a large group does not flood the vendors. There is no ordering
// guarantee inside the group.
type BulkRequest struct {
	GroupID       string
	Notifications []*Notification
}

// SendBulk submits the group in the background and resolves to the group's
// counters once every notification has had its first processing round.
// Individual failures do not fail the group; they show up in the stats and on
// each notification's own status.
func (o *Orchestrator) SendBulk(ctx context.Context, req BulkRequest) (*async.Future[*GroupStats], error) {
	if len(req.Notifications) == 0 {
		return nil, ErrEmptyGroup
	}
	if len(req.Notifications) > o.cfg.BulkMaxGroup {
		return nil, ErrGroupTooBig
	}

	groupID := req.GroupID
	if groupID == "" {
		groupID = uuid.NewString()
	}
	for _, n := range req.Notifications {
		n.GroupID = groupID
	}

	return async.Run(ctx, func(ctx context.Context) (*GroupStats, error) {
		o.runBulk(ctx, groupID, req.Notifications)
		return o.storage.GroupStats(context.WithoutCancel(ctx), groupID)
	}), nil
}

func (o *Orchestrator) runBulk(ctx context.Context, groupID string, notifications []*Notification) {
	for start := 0; start < len(notifications); start += o.cfg.BulkBatchSize {
		end := min(start+o.cfg.BulkBatchSize, len(notifications))
		batch := notifications[start:end]

		futures := make([]*async.Future[*Attempt], len(batch))
		for i, n := range batch {
			futures[i] = async.Run(ctx, func(ctx context.Context) (*Attempt, error) {
				return o.SendNotification(ctx, n)
			})
		}
		if _, err := async.All(futures...); err != nil {
			o.log.LogAttrs(ctx, slog.LevelWarn, "bulk batch had failures",
				logger.GroupID(groupID),
				slog.Int("batch_start", start),
				logger.Error(err),
			)
		}

		if end < len(notifications) && o.cfg.BulkBatchDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.cfg.BulkBatchDelay):
			}
		}
	}
}
