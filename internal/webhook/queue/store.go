// Package queue provides the durable offline queue of undelivered webhook payloads.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bargom/leadrelay/internal/assessment"
	"github.com/bargom/leadrelay/internal/storage"
)

// DefaultKey is the storage key holding the serialized queue.
const DefaultKey = "webhook_offline_queue"

var (
	// ErrItemExists is returned when appending an item whose id is already queued.
	ErrItemExists = errors.New("queue: item already exists")
	// ErrInvalidItem is returned for items without an id or URL.
	ErrInvalidItem = errors.New("queue: item requires an id and url")
)

// Logger defines the logging interface for the queue.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Item is one undelivered payload for one endpoint.
type Item struct {
	ID           string          `json:"id"`
	EndpointName string          `json:"endpoint"`
	URL          string          `json:"url"`
	Payload      json.RawMessage `json:"payload"`
	EnqueuedAt   time.Time       `json:"enqueued_at"`
	Attempts     int             `json:"attempts"`
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithKey overrides the storage key.
func WithKey(key string) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithClock sets the time source used for EnqueuedAt and ids.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDs sets the id generator.
func WithIDs(gen func(time.Time) string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithDepthObserver registers a callback receiving the queue length after every change.
func WithDepthObserver(fn func(depth int)) Option {
	return func(s *Store) {
		s.onDepth = append(s.onDepth, fn)
	}
}

// Store is the offline queue. The whole queue is one JSON array under a single
// storage key; every mutation rewrites it while holding the store mutex, and
// the in-memory view only changes once the write succeeded.
type Store struct {
	mu      sync.Mutex
	kv      storage.Store
	key     string
	items   []Item
	logger  Logger
	now     func() time.Time
	newID   func(time.Time) string
	onDepth []func(int)
}

// Open loads the queue from kv. An unreadable document is logged and replaced
// by an empty queue on the next write.
func Open(ctx context.Context, kv storage.Store, opts ...Option) (*Store, error) {
	s := &Store{
		kv:     kv,
		key:    DefaultKey,
		logger: slog.Default(),
		now:    time.Now,
		newID:  assessment.NewSessionID,
	}
	for _, opt := range opts {
		opt(s)
	}

	data, err := kv.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("queue: loading: %w", err)
	default:
		if err := json.Unmarshal(data, &s.items); err != nil {
			s.logger.Error("discarding unreadable offline queue", "key", s.key, "error", err)
			s.items = nil
		}
	}

	s.logger.Info("offline queue loaded", "items", len(s.items))
	s.publishDepth(len(s.items))
	return s, nil
}

// Enqueue creates an item with a fresh id and zero attempts and appends it.
func (s *Store) Enqueue(ctx context.Context, endpointName, url string, payload json.RawMessage) (Item, error) {
	now := s.now().UTC()
	item := Item{
		ID:           s.newID(now),
		EndpointName: endpointName,
		URL:          url,
		Payload:      payload,
		EnqueuedAt:   now,
	}
	if err := s.Append(ctx, item); err != nil {
		return Item{}, err
	}
	return item, nil
}

// Append adds item at the end of the queue and persists immediately.
func (s *Store) Append(ctx context.Context, item Item) error {
	if item.ID == "" || item.URL == "" {
		return ErrInvalidItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.items {
		if it.ID == item.ID {
			return fmt.Errorf("%w: %s", ErrItemExists, item.ID)
		}
	}

	next := make([]Item, len(s.items), len(s.items)+1)
	copy(next, s.items)
	next = append(next, item)

	if err := s.persist(ctx, next); err != nil {
		return err
	}
	s.logger.Info("queued webhook for offline processing", "endpoint", item.EndpointName, "id", item.ID)
	return nil
}

// All returns a snapshot of the queue in insertion order.
func (s *Store) All() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Item(nil), s.items...)
}

// Len returns the number of queued items.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Oldest returns the enqueue time of the first item.
func (s *Store) Oldest() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.items) == 0 {
		return time.Time{}, false
	}
	return s.items[0].EnqueuedAt, true
}

// RemoveByIDs deletes the matching items and persists once. It returns the number removed.
func (s *Store) RemoveByIDs(ctx context.Context, ids ...string) (int, error) {
	return s.Commit(ctx, Update{Remove: ids})
}

// Update is a batch of changes applied in one persisted write.
type Update struct {
	// Remove lists ids to delete.
	Remove []string
	// Attempts sets the attempt counter of the listed ids.
	Attempts map[string]int
}

// Commit applies u in a single persisted write. Ids that are no longer queued are ignored.
func (s *Store) Commit(ctx context.Context, u Update) (int, error) {
	if len(u.Remove) == 0 && len(u.Attempts) == 0 {
		return 0, nil
	}

	drop := make(map[string]struct{}, len(u.Remove))
	for _, id := range u.Remove {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]Item, 0, len(s.items))
	changed := false
	for _, it := range s.items {
		if _, ok := drop[it.ID]; ok {
			changed = true
			continue
		}
		if n, ok := u.Attempts[it.ID]; ok && n != it.Attempts {
			it.Attempts = n
			changed = true
		}
		next = append(next, it)
	}
	if !changed {
		return 0, nil
	}

	removed := len(s.items) - len(next)
	if err := s.persist(ctx, next); err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear empties the queue.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx, []Item{})
}

// Flush writes the current queue again.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persist(ctx, s.items)
}

// persist must be called with s.mu held.
func (s *Store) persist(ctx context.Context, next []Item) error {
	if next == nil {
		next = []Item{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("queue: encoding: %w", err)
	}
	if err := s.kv.Put(ctx, s.key, data); err != nil {
		s.logger.Error("saving offline queue failed", "error", err)
		return fmt.Errorf("queue: saving: %w", err)
	}
	s.items = next
	s.publishDepth(len(next))
	return nil
}

func (s *Store) publishDepth(n int) {
	for _, fn := range s.onDepth {
		fn(n)
	}
}
