package inbox

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/heraldlabs/herald/pkg/clock"
)

var (
	// ErrMessageNotFound is returned when a feed message is not found.
	ErrMessageNotFound = errors.New("inbox: message not found")

	// ErrInvalidMessage is returned when a message misses required identity.
	ErrInvalidMessage = errors.New("inbox: message requires id and user id")
)

// MemoryStore is an in-memory Store implementation. Suitable for development,
// tests and single-instance deployments.
type MemoryStore struct {
	mu    sync.RWMutex
	feeds map[string][]Message // userID -> messages
	clock clock.Clock
}

type memoryStoreOption func(*MemoryStore)

// WithClock substitutes the time source, primarily for tests.
func WithClock(c clock.Clock) memoryStoreOption {
	return func(s *MemoryStore) { s.clock = c }
}

// NewMemoryStore creates a new in-memory feed store.
func NewMemoryStore(opts ...memoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		feeds: make(map[string][]Message),
		clock: clock.System(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Create(ctx context.Context, msg Message) error {
	if msg.ID == "" || msg.UserID == "" {
		return ErrInvalidMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.clock.Now()
	}

	s.feeds[msg.UserID] = append(s.feeds[msg.UserID], msg)
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, userID, msgID string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.feeds[userID] {
		if m.ID == msgID {
			// Copy so callers cannot mutate stored state.
			out := m
			return &out, nil
		}
	}
	return nil, ErrMessageNotFound
}

func (s *MemoryStore) List(ctx context.Context, userID string, opts ListOptions) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var filtered []Message
	for _, m := range s.feeds[userID] {
		if opts.OnlyUnread && m.Read {
			continue
		}
		if opts.Since != nil && m.CreatedAt.Before(*opts.Since) {
			continue
		}
		filtered = append(filtered, m)
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(filtered) {
			return []Message{}, nil
		}
		filtered = filtered[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(filtered) {
		filtered = filtered[:opts.Limit]
	}

	if filtered == nil {
		filtered = []Message{}
	}
	return filtered, nil
}

func (s *MemoryStore) MarkRead(ctx context.Context, userID string, msgIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	ids := make(map[string]struct{}, len(msgIDs))
	for _, id := range msgIDs {
		ids[id] = struct{}{}
	}

	feed := s.feeds[userID]
	for i := range feed {
		if _, ok := ids[feed[i].ID]; ok && !feed[i].Read {
			feed[i].Read = true
			feed[i].ReadAt = &now
		}
	}
	return nil
}

func (s *MemoryStore) CountUnread(ctx context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, m := range s.feeds[userID] {
		if !m.Read {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) Delete(ctx context.Context, userID string, msgIDs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make(map[string]struct{}, len(msgIDs))
	for _, id := range msgIDs {
		ids[id] = struct{}{}
	}

	feed := s.feeds[userID]
	kept := feed[:0]
	for _, m := range feed {
		if _, ok := ids[m.ID]; !ok {
			kept = append(kept, m)
		}
	}
	s.feeds[userID] = kept
	return nil
}
