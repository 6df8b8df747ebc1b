// Package notification holds the in-memory notification list and the
// real-time channel that feeds it.
package notification

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"payment-console/internal/domain"
	"payment-console/internal/observability"

	"github.com/google/uuid"
)

// Relay forwards added notifications to other consumers.
type Relay interface {
	PublishNotification(ctx context.Context, n domain.Notification) error
}

// ListState is the list as seen by subscribers. Notifications are newest first.
type ListState struct {
	Notifications []domain.Notification `json:"notifications"`
	UnreadCount   int                   `json:"unreadCount"`
}

// Store keeps notifications newest first. The unread count is derived from
// the list on every read, so it cannot drift.
type Store struct {
	toaster domain.Toaster
	relay   Relay
	now     func() time.Time

	mu    sync.RWMutex
	items []domain.Notification

	subsMu  sync.Mutex
	subs    map[int]func(ListState)
	nextSub int
}

// NewStore creates an empty store. toaster and relay may be nil.
func NewStore(toaster domain.Toaster, relay Relay) *Store {
	return &Store{
		toaster: toaster,
		relay:   relay,
		now:     time.Now,
		subs:    make(map[int]func(ListState)),
	}
}

// Add assigns an id and timestamp, prepends the notification as unread,
// shows a toast and forwards it to the relay.
func (s *Store) Add(ctx context.Context, in domain.NotificationInput) domain.Notification {
	severity := in.Severity
	if severity == "" {
		severity = domain.SeverityInfo
	}

	n := domain.Notification{
		ID:          "notification-" + uuid.NewString(),
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		Severity:    severity,
		Timestamp:   s.now().UTC().Format(time.RFC3339Nano),
		ActionURL:   in.ActionURL,
		ActionLabel: in.ActionLabel,
		Metadata:    in.Metadata,
	}

	s.mutate(func(items []domain.Notification) []domain.Notification {
		return append([]domain.Notification{n}, items...)
	})

	if s.toaster != nil {
		s.toaster.Toast(domain.Toast{
			Message:  n.Message,
			Severity: n.Severity,
			Duration: n.Severity.ToastDuration(),
		})
	}

	if s.relay != nil {
		if err := s.relay.PublishNotification(ctx, n); err != nil {
			observability.FromContext(ctx).Warn("failed to relay notification",
				slog.String("error", err.Error()),
				slog.String("notification_id", n.ID))
		}
	}

	return n
}

// MarkAsRead flags one notification as read.
func (s *Store) MarkAsRead(id string) error {
	found := false
	s.mutate(func(items []domain.Notification) []domain.Notification {
		for i := range items {
			if items[i].ID == id {
				items[i].IsRead = true
				found = true
			}
		}
		return items
	})
	if !found {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// MarkAllAsRead flags every notification as read.
func (s *Store) MarkAllAsRead() {
	s.mutate(func(items []domain.Notification) []domain.Notification {
		for i := range items {
			items[i].IsRead = true
		}
		return items
	})
}

// Remove deletes one notification.
func (s *Store) Remove(id string) error {
	found := false
	s.mutate(func(items []domain.Notification) []domain.Notification {
		kept := items[:0]
		for _, n := range items {
			if n.ID == id {
				found = true
				continue
			}
			kept = append(kept, n)
		}
		return kept
	})
	if !found {
		return domain.ErrNotificationNotFound
	}
	return nil
}

// ClearAll empties the list.
func (s *Store) ClearAll() {
	s.mutate(func([]domain.Notification) []domain.Notification { return nil })
}

// List returns a copy of the notifications, newest first.
func (s *Store) List() []domain.Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

// UnreadCount returns how many notifications are unread.
func (s *Store) UnreadCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return unread(s.items)
}

// State returns the list together with its unread count.
func (s *Store) State() ListState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ListState{Notifications: cloneAll(s.items), UnreadCount: unread(s.items)}
}

// Subscribe registers fn to receive the state after every mutation.
func (s *Store) Subscribe(fn func(ListState)) func() {
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	return func() {
		s.subsMu.Lock()
		delete(s.subs, id)
		s.subsMu.Unlock()
	}
}

func (s *Store) mutate(fn func([]domain.Notification) []domain.Notification) {
	s.mu.Lock()
	s.items = fn(s.items)
	next := ListState{Notifications: cloneAll(s.items), UnreadCount: unread(s.items)}
	s.mu.Unlock()

	observability.NotificationsUnread.Set(float64(next.UnreadCount))

	s.subsMu.Lock()
	subs := make([]func(ListState), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.subsMu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

func unread(items []domain.Notification) int {
	n := 0
	for _, item := range items {
		if !item.IsRead {
			n++
		}
	}
	return n
}

func cloneAll(items []domain.Notification) []domain.Notification {
	out := make([]domain.Notification, len(items))
	copy(out, items)
	return out
}
