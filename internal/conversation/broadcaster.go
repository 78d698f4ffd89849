// ABOUTME: Synchronous fan-out of state changes to registered observers
// ABOUTME: Observers subscribe per convoy or to every change and are called before Publish returns

package conversation

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/convoy-coordinator/internal/store"
)

// AllConvoys is the subscription key for observers that want every change
const AllConvoys = ""

// ChangeKind names the action that produced a Change
type ChangeKind string

const (
	ChangeLogin    ChangeKind = "login"
	ChangeLogout   ChangeKind = "logout"
	ChangeCreated  ChangeKind = "convoy_created"
	ChangeJoined   ChangeKind = "participant_joined"
	ChangeLeft     ChangeKind = "participant_left"
	ChangeMessage  ChangeKind = "message_sent"
	ChangeRestored ChangeKind = "state_restored"
)

// Change describes one committed state transition.
// ConvoyID is empty for identity-only changes.
type Change struct {
	Kind     ChangeKind
	ConvoyID string
	UserID   string
	Message  *store.ChatMessage // set for ChangeMessage
}

// Observer is called synchronously for each published Change
type Observer func(Change)

type subscriber struct {
	seq  uint64
	fn   Observer
	done chan struct{} // closed when the subscription ends
}

// Broadcaster provides in-memory pub/sub for committed changes.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]subscriber // key -> subID -> subscriber
	seq         uint64
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]subscriber),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers fn for changes on key (a convoy id, or AllConvoys).
// Returns a subscription ID for later unsubscription. The subscription is
// automatically removed when ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, key string, fn Observer) string {
	subID := uuid.New().String()

	b.mu.Lock()
	if _, ok := b.subscribers[key]; !ok {
		b.subscribers[key] = make(map[string]subscriber)
	}
	b.seq++
	sub := subscriber{seq: b.seq, fn: fn, done: make(chan struct{})}
	b.subscribers[key][subID] = sub
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "key", key, "sub_id", subID)

	// The watcher exits on cancellation or when the subscription ends first.
	if ctxDone := ctx.Done(); ctxDone != nil {
		go func() {
			select {
			case <-ctxDone:
				b.Unsubscribe(key, subID)
			case <-sub.done:
			}
		}()
	}

	return subID
}

// Publish calls every observer of c.ConvoyID and every AllConvoys observer,
// in subscription order, on the calling goroutine.
func (b *Broadcaster) Publish(c Change) {
	b.mu.RLock()
	targets := make([]subscriber, 0, len(b.subscribers[AllConvoys])+len(b.subscribers[c.ConvoyID]))
	for _, s := range b.subscribers[AllConvoys] {
		targets = append(targets, s)
	}
	if c.ConvoyID != AllConvoys {
		for _, s := range b.subscribers[c.ConvoyID] {
			targets = append(targets, s)
		}
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}
	slices.SortFunc(targets, func(x, y subscriber) int {
		switch {
		case x.seq < y.seq:
			return -1
		case x.seq > y.seq:
			return 1
		}
		return 0
	})

	// Called without the lock held so observers may (un)subscribe
	for _, s := range targets {
		s.fn(c)
	}
	b.logger.Debug("change published", "kind", c.Kind, "convoy_id", c.ConvoyID, "observers", len(targets))
}

// Unsubscribe removes a subscription. Unknown ids are ignored.
func (b *Broadcaster) Unsubscribe(key, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[key]
	if !ok {
		return
	}
	sub, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(sub.done)

	// Clean up empty key entries
	if len(subs) == 0 {
		delete(b.subscribers, key)
	}

	b.logger.Debug("subscriber removed", "key", key, "sub_id", subID)
}

// Len returns the number of live subscriptions.
func (b *Broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, subs := range b.subscribers {
		n += len(subs)
	}
	return n
}

// Close drops every subscription.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		for _, sub := range subs {
			close(sub.done)
		}
	}
	clear(b.subscribers)
	b.logger.Debug("broadcaster closed")
}
