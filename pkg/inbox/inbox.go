// Package inbox holds the in-app notification feed. The in-app channel has no
// external vendor: delivering a notification means storing a message here and
// letting the (out-of-scope) client read it.
package inbox

import (
	"context"
	"time"
)

// Message is a single entry in a user's in-app feed.
type Message struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	ReadAt    *time.Time     `json:"read_at,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListOptions filters and paginates feed reads.
type ListOptions struct {
	Limit      int
	Offset     int
	OnlyUnread bool
	Since      *time.Time
}

// Store persists in-app feed messages.
type Store interface {
	// Create appends a message to the recipient's feed.
	Create(ctx context.Context, msg Message) error

	// Get retrieves a single message.
	Get(ctx context.Context, userID, msgID string) (*Message, error)

	// List returns feed messages for a user, newest first.
	List(ctx context.Context, userID string, opts ListOptions) ([]Message, error)

	// MarkRead marks message(s) as read.
	MarkRead(ctx context.Context, userID string, msgIDs ...string) error

	// CountUnread returns the unread count for a user.
	CountUnread(ctx context.Context, userID string) (int, error)

	// Delete removes message(s).
	Delete(ctx context.Context, userID string, msgIDs ...string) error
}
