package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heraldlabs/herald/pkg/provider"
)

// Schema creates the delivery tables. Applied by the deployment's migration
// tooling; exposed here so tests and dev setups can bootstrap directly.
const Schema = `
CREATE TABLE IF NOT EXISTS notifications (
	id            TEXT PRIMARY KEY,
	channel       TEXT NOT NULL,
	recipient     TEXT NOT NULL,
	priority      TEXT NOT NULL DEFAULT 'normal',
	subject       TEXT NOT NULL DEFAULT '',
	body          TEXT NOT NULL DEFAULT '',
	html_body     TEXT NOT NULL DEFAULT '',
	template_id   TEXT NOT NULL DEFAULT '',
	variables     JSONB,
	locale        TEXT NOT NULL DEFAULT '',
	data          JSONB,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	retry_count   INT NOT NULL DEFAULT 0,
	max_retries   INT NOT NULL DEFAULT 3,
	next_retry_at TIMESTAMPTZ,
	scheduled_at  TIMESTAMPTZ,
	group_id      TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL,
	sent_at       TIMESTAMPTZ,
	delivered_at  TIMESTAMPTZ,
	failed_at     TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_notifications_due
	ON notifications (status, next_retry_at);
CREATE INDEX IF NOT EXISTS idx_notifications_scheduled
	ON notifications (status, scheduled_at);
CREATE INDEX IF NOT EXISTS idx_notifications_group
	ON notifications (group_id) WHERE group_id <> '';

CREATE TABLE IF NOT EXISTS delivery_attempts (
	id                  TEXT PRIMARY KEY,
	notification_id     TEXT NOT NULL REFERENCES notifications (id) ON DELETE CASCADE,
	attempt_number      INT NOT NULL,
	channel             TEXT NOT NULL,
	status              TEXT NOT NULL,
	provider            TEXT NOT NULL DEFAULT '',
	provider_message_id TEXT NOT NULL DEFAULT '',
	latency_ms          BIGINT NOT NULL DEFAULT 0,
	error_code          TEXT NOT NULL DEFAULT '',
	error_message       TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	sent_at             TIMESTAMPTZ,
	delivered_at        TIMESTAMPTZ,
	bounced_at          TIMESTAMPTZ,
	failed_at           TIMESTAMPTZ,
	UNIQUE (notification_id, attempt_number)
);

CREATE INDEX IF NOT EXISTS idx_attempts_provider_message
	ON delivery_attempts (provider, provider_message_id)
	WHERE provider_message_id <> '';
`

// PostgresStorage is the production Storage implementation over pgx.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage wraps an existing connection pool.
func NewPostgresStorage(pool *pgxpool.Pool) (*PostgresStorage, error) {
	if pool == nil {
		return nil, ErrStorageRequired
	}
	return &PostgresStorage{pool: pool}, nil
}

// Migrate applies the schema.
func (s *PostgresStorage) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply delivery schema: %w", err)
	}
	return nil
}

const notificationColumns = `id, channel, recipient, priority, subject, body, html_body,
	template_id, variables, locale, data, status, reason, retry_count, max_retries,
	next_retry_at, scheduled_at, group_id, created_at, updated_at, sent_at, delivered_at, failed_at`

func (s *PostgresStorage) CreateNotification(ctx context.Context, n *Notification) error {
	if err := n.Validate(); err != nil {
		return err
	}

	vars, data, err := marshalPayloads(n)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO notifications (`+notificationColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`,
		n.ID, string(n.Channel), n.Recipient, string(n.Priority), n.Subject, n.Body, n.HTMLBody,
		n.TemplateID, vars, n.Locale, data, string(n.Status), n.Reason, n.RetryCount, n.MaxRetries,
		n.NextRetryAt, n.ScheduledAt, n.GroupID, n.CreatedAt, n.UpdatedAt, n.SentAt, n.DeliveredAt, n.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *PostgresStorage) GetNotification(ctx context.Context, id string) (*Notification, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id = $1`, id)
	return scanNotification(row)
}

func (s *PostgresStorage) UpdateNotification(ctx context.Context, n *Notification) error {
	vars, data, err := marshalPayloads(n)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET
			status = $2, reason = $3, retry_count = $4, max_retries = $5,
			next_retry_at = $6, scheduled_at = $7, updated_at = $8,
			sent_at = $9, delivered_at = $10, failed_at = $11,
			subject = $12, body = $13, html_body = $14, variables = $15, data = $16
		WHERE id = $1`,
		n.ID, string(n.Status), n.Reason, n.RetryCount, n.MaxRetries,
		n.NextRetryAt, n.ScheduledAt, n.UpdatedAt,
		n.SentAt, n.DeliveredAt, n.FailedAt,
		n.Subject, n.Body, n.HTMLBody, vars, data,
	)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (s *PostgresStorage) ListScheduled(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	return s.listNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND next_retry_at IS NULL
		  AND scheduled_at IS NOT NULL AND scheduled_at <= $1
		ORDER BY created_at
		LIMIT $2`, now, limit)
}

func (s *PostgresStorage) ListDueRetries(ctx context.Context, now time.Time, limit int) ([]*Notification, error) {
	return s.listNotifications(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE status = 'pending' AND next_retry_at IS NOT NULL AND next_retry_at <= $1
		ORDER BY created_at
		LIMIT $2`, now, limit)
}

func (s *PostgresStorage) listNotifications(ctx context.Context, query string, args ...any) ([]*Notification, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CreateAttempt(ctx context.Context, a *Attempt) error {
	// The per-notification single-flight guarantee in the orchestrator makes
	// the MAX()+1 read race-free; the unique constraint backs it up.
	err := s.pool.QueryRow(ctx, `
		INSERT INTO delivery_attempts (
			id, notification_id, attempt_number, channel, status, provider,
			provider_message_id, latency_ms, error_code, error_message,
			created_at, sent_at, delivered_at, bounced_at, failed_at
		)
		SELECT $1, $2,
			COALESCE(MAX(attempt_number), 0) + 1,
			$3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
		FROM delivery_attempts WHERE notification_id = $2
		RETURNING attempt_number`,
		a.ID, a.NotificationID, string(a.Channel), string(a.Status), a.Provider,
		a.ProviderMessageID, a.Latency.Milliseconds(), a.ErrorCode, a.ErrorMessage,
		a.CreatedAt, a.SentAt, a.DeliveredAt, a.BouncedAt, a.FailedAt,
	).Scan(&a.Number)
	if err != nil {
		return fmt.Errorf("insert delivery attempt: %w", err)
	}
	return nil
}

func (s *PostgresStorage) UpdateAttempt(ctx context.Context, a *Attempt) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE delivery_attempts SET
			status = $2, provider = $3, provider_message_id = $4, latency_ms = $5,
			error_code = $6, error_message = $7,
			sent_at = $8, delivered_at = $9, bounced_at = $10, failed_at = $11
		WHERE id = $1`,
		a.ID, string(a.Status), a.Provider, a.ProviderMessageID, a.Latency.Milliseconds(),
		a.ErrorCode, a.ErrorMessage,
		a.SentAt, a.DeliveredAt, a.BouncedAt, a.FailedAt,
	)
	if err != nil {
		return fmt.Errorf("update delivery attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAttemptNotFound
	}
	return nil
}

const attemptColumns = `id, notification_id, attempt_number, channel, status, provider,
	provider_message_id, latency_ms, error_code, error_message,
	created_at, sent_at, delivered_at, bounced_at, failed_at`

func (s *PostgresStorage) ListAttempts(ctx context.Context, notificationID string) ([]*Attempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE notification_id = $1
		ORDER BY attempt_number`, notificationID)
	if err != nil {
		return nil, fmt.Errorf("query delivery attempts: %w", err)
	}
	defer rows.Close()

	out := []*Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) FindAttemptByProviderMessage(ctx context.Context, providerName, messageID string) (*Attempt, error) {
	if messageID == "" {
		return nil, ErrAttemptNotFound
	}
	row := s.pool.QueryRow(ctx, `
		SELECT `+attemptColumns+` FROM delivery_attempts
		WHERE provider = $1 AND provider_message_id = $2
		ORDER BY created_at DESC
		LIMIT 1`, providerName, messageID)
	return scanAttempt(row)
}

// metricsWhere builds the optional filter clause shared by the aggregate
// queries. Column names are caller-controlled constants, never user input.
func metricsWhere(filter MetricsFilter, channelCol, createdCol string) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if filter.Channel != "" {
		args = append(args, string(filter.Channel))
		clauses = append(clauses, fmt.Sprintf("%s = $%d", channelCol, len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		clauses = append(clauses, fmt.Sprintf("%s >= $%d", createdCol, len(args)))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (s *PostgresStorage) CountByStatus(ctx context.Context, filter MetricsFilter) (map[Status]int64, error) {
	where, args := metricsWhere(filter, "channel", "created_at")
	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM notifications`+where+` GROUP BY status`, args...)
	if err != nil {
		return nil, fmt.Errorf("count notifications by status: %w", err)
	}
	defer rows.Close()

	out := make(map[Status]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		out[Status(status)] = count
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CountByChannel(ctx context.Context, filter MetricsFilter) (map[provider.Channel]int64, error) {
	where, args := metricsWhere(filter, "channel", "created_at")
	rows, err := s.pool.Query(ctx, `SELECT channel, COUNT(*) FROM notifications`+where+` GROUP BY channel`, args...)
	if err != nil {
		return nil, fmt.Errorf("count notifications by channel: %w", err)
	}
	defer rows.Close()

	out := make(map[provider.Channel]int64)
	for rows.Next() {
		var channel string
		var count int64
		if err := rows.Scan(&channel, &count); err != nil {
			return nil, err
		}
		out[provider.Channel(channel)] = count
	}
	return out, rows.Err()
}

func (s *PostgresStorage) CountByProvider(ctx context.Context, filter MetricsFilter) (map[string]ProviderCounts, error) {
	where, args := metricsWhere(filter, "channel", "created_at")
	if where == "" {
		where = " WHERE provider <> ''"
	} else {
		where += " AND provider <> ''"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT provider,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'sent'),
		       COUNT(*) FILTER (WHERE status = 'delivered'),
		       COUNT(*) FILTER (WHERE status IN ('bounced', 'failed'))
		FROM delivery_attempts`+where+`
		GROUP BY provider`, args...)
	if err != nil {
		return nil, fmt.Errorf("count attempts by provider: %w", err)
	}
	defer rows.Close()

	out := make(map[string]ProviderCounts)
	for rows.Next() {
		var name string
		var counts ProviderCounts
		if err := rows.Scan(&name, &counts.Attempts, &counts.Sent, &counts.Delivered, &counts.Failed); err != nil {
			return nil, err
		}
		out[name] = counts
	}
	return out, rows.Err()
}

func (s *PostgresStorage) GroupStats(ctx context.Context, groupID string) (*GroupStats, error) {
	if groupID == "" {
		return nil, ErrMissingGroup
	}

	stats := &GroupStats{GroupID: groupID}
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status IN ('pending', 'processing')),
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'delivered'),
			COUNT(*) FILTER (WHERE status = 'failed')
		FROM notifications WHERE group_id = $1`, groupID,
	).Scan(&stats.Total, &stats.Pending, &stats.Sent, &stats.Delivered, &stats.Failed)
	if err != nil {
		return nil, fmt.Errorf("group stats: %w", err)
	}
	return stats, nil
}

func (s *PostgresStorage) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM notifications
		WHERE updated_at <= $1
		  AND status IN ('delivered', 'sent', 'failed')`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge terminal notifications: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func marshalPayloads(n *Notification) ([]byte, []byte, error) {
	var vars, data []byte
	var err error
	if n.Variables != nil {
		if vars, err = json.Marshal(n.Variables); err != nil {
			return nil, nil, fmt.Errorf("marshal variables: %w", err)
		}
	}
	if n.Data != nil {
		if data, err = json.Marshal(n.Data); err != nil {
			return nil, nil, fmt.Errorf("marshal data: %w", err)
		}
	}
	return vars, data, nil
}

func scanNotification(row pgx.Row) (*Notification, error) {
	var (
		n          Notification
		channel    string
		priority   string
		status     string
		vars, data []byte
	)
	err := row.Scan(
		&n.ID, &channel, &n.Recipient, &priority, &n.Subject, &n.Body, &n.HTMLBody,
		&n.TemplateID, &vars, &n.Locale, &data, &status, &n.Reason, &n.RetryCount, &n.MaxRetries,
		&n.NextRetryAt, &n.ScheduledAt, &n.GroupID, &n.CreatedAt, &n.UpdatedAt, &n.SentAt, &n.DeliveredAt, &n.FailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan notification: %w", err)
	}

	n.Channel = provider.Channel(channel)
	n.Priority = Priority(priority)
	n.Status = Status(status)
	if len(vars) > 0 {
		if err := json.Unmarshal(vars, &n.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &n.Data); err != nil {
			return nil, fmt.Errorf("unmarshal data: %w", err)
		}
	}
	return &n, nil
}

func scanAttempt(row pgx.Row) (*Attempt, error) {
	var (
		a         Attempt
		channel   string
		status    string
		latencyMS int64
	)
	err := row.Scan(
		&a.ID, &a.NotificationID, &a.Number, &channel, &status, &a.Provider,
		&a.ProviderMessageID, &latencyMS, &a.ErrorCode, &a.ErrorMessage,
		&a.CreatedAt, &a.SentAt, &a.DeliveredAt, &a.BouncedAt, &a.FailedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan delivery attempt: %w", err)
	}

	a.Channel = provider.Channel(channel)
	a.Status = AttemptStatus(status)
	a.Latency = time.Duration(latencyMS) * time.Millisecond
	return &a, nil
}
