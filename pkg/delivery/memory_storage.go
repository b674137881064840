package delivery

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/heraldlabs/herald/pkg/provider"
)

// MemoryStorage is an in-memory Storage implementation for development,
// tests and single-instance deployments.
type MemoryStorage struct {
	mu            sync.RWMutex
	notifications map[string]*Notification
	attempts      map[string][]*Attempt // notificationID -> attempts, ordered by number
}

// NewMemoryStorage creates an empty in-memory store.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		notifications: make(map[string]*Notification),
		attempts:      make(map[string][]*Attempt),
	}
}

func (s *MemoryStorage) CreateNotification(ctx context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetNotification(ctx context.Context, id string) (*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.notifications[id]
	if !ok {
		return nil, ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (s *MemoryStorage) UpdateNotification(ctx context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[n.ID]; !ok {
		return ErrNotificationNotFound
	}
	cp := *n
	s.notifications[n.ID] = &cp
	return nil
}

func (s *MemoryStorage) ListScheduled(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	return s.listPending(limit, func(n *Notification) bool {
		return n.NextRetryAt == nil && n.ScheduledAt != nil && !n.ScheduledAt.After(now)
	})
}

func (s *MemoryStorage) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	return s.listPending(limit, func(n *Notification) bool {
		return n.NextRetryAt != nil && !n.NextRetryAt.After(now)
	})
}

func (s *MemoryStorage) listPending(limit int, match func(*Notification) bool) ([]*Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Notification
	for _, n := range s.notifications {
		if n.Status != StatusPending || !match(n) {
			continue
		}
		cp := *n
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStorage) CreateAttempt(ctx context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.notifications[a.NotificationID]; !ok {
		return ErrNotificationNotFound
	}

	a.Number = len(s.attempts[a.NotificationID]) + 1
	cp := *a
	s.attempts[a.NotificationID] = append(s.attempts[a.NotificationID], &cp)
	return nil
}

func (s *MemoryStorage) UpdateAttempt(ctx context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, existing := range s.attempts[a.NotificationID] {
		if existing.ID == a.ID {
			cp := *a
			s.attempts[a.NotificationID][i] = &cp
			return nil
		}
	}
	return ErrAttemptNotFound
}

func (s *MemoryStorage) ListAttempts(ctx context.Context, notificationID string) ([]*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := s.attempts[notificationID]
	out := make([]*Attempt, len(attempts))
	for i, a := range attempts {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStorage) FindAttemptByProviderMessage(ctx context.Context, providerName, messageID string) (*Attempt, error) {
	if messageID == "" {
		return nil, ErrAttemptNotFound
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, attempts := range s.attempts {
		for _, a := range attempts {
			if a.Provider == providerName && a.ProviderMessageID == messageID {
				cp := *a
				return &cp, nil
			}
		}
	}
	return nil, ErrAttemptNotFound
}

func (s *MemoryStorage) CountByStatus(ctx context.Context, filter MetricsFilter) (map[Status]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[Status]int64)
	for _, n := range s.notifications {
		if !matchNotification(n, filter) {
			continue
		}
		out[n.Status]++
	}
	return out, nil
}

func (s *MemoryStorage) CountByChannel(ctx context.Context, filter MetricsFilter) (map[provider.Channel]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[provider.Channel]int64)
	for _, n := range s.notifications {
		if !matchNotification(n, filter) {
			continue
		}
		out[n.Channel]++
	}
	return out, nil
}

func (s *MemoryStorage) CountByProvider(ctx context.Context, filter MetricsFilter) (map[string]ProviderCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]ProviderCounts)
	for _, attempts := range s.attempts {
		for _, a := range attempts {
			if a.Provider == "" {
				continue
			}
			if filter.Channel != "" && a.Channel != filter.Channel {
				continue
			}
			if !filter.Since.IsZero() && a.CreatedAt.Before(filter.Since) {
				continue
			}
			counts := out[a.Provider]
			counts.Attempts++
			switch a.Status {
			case AttemptSent:
				counts.Sent++
			case AttemptDelivered:
				counts.Delivered++
			case AttemptBounced, AttemptFailed:
				counts.Failed++
			}
			out[a.Provider] = counts
		}
	}
	return out, nil
}

func matchNotification(n *Notification, filter MetricsFilter) bool {
	if filter.Channel != "" && n.Channel != filter.Channel {
		return false
	}
	if !filter.Since.IsZero() && n.CreatedAt.Before(filter.Since) {
		return false
	}
	return true
}

func (s *MemoryStorage) GroupStats(ctx context.Context, groupID string) (*GroupStats, error) {
	if groupID == "" {
		return nil, ErrMissingGroup
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &GroupStats{GroupID: groupID}
	for _, n := range s.notifications {
		if n.GroupID != groupID {
			continue
		}
		stats.Total++
		switch n.Status {
		case StatusPending, StatusProcessing:
			stats.Pending++
		case StatusSent:
			stats.Sent++
		case StatusDelivered:
			stats.Delivered++
		case StatusFailed:
			stats.Failed++
		}
	}
	return stats, nil
}

func (s *MemoryStorage) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, n := range s.notifications {
		// A stored failed row is terminal by construction: MarkAsFailed
		// returns retryable failures to pending. Stale sent rows are
		// reclaimed too; callbacks that old resolve to nothing anyway.
		settled := n.Status == StatusDelivered ||
			n.Status == StatusSent ||
			n.Status == StatusFailed
		if !settled || n.UpdatedAt.After(cutoff) {
			continue
		}
		delete(s.notifications, id)
		delete(s.attempts, id)
		purged++
	}
	return purged, nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error { return nil }
