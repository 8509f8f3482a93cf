// ABOUTME: In-memory fan-out of onboarding snapshots to session subscribers
// ABOUTME: Slow subscribers see only the latest snapshot; older ones are replaced

package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/coven-onboard/internal/onboarding"
)

// Broadcaster delivers snapshots to every subscriber. Each subscriber channel
// holds at most one pending snapshot; publishing while one is pending replaces
// it, so a slow consumer always catches up to the newest state.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string]chan onboarding.Snapshot // subID -> ch
	closed      bool
	done        chan struct{}
	logger      *slog.Logger
}

// NewBroadcaster creates a broadcaster. Pass nil logger for default.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]chan onboarding.Snapshot),
		done:        make(chan struct{}),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber and returns its channel and id. The
// subscription is removed when ctx is cancelled or the broadcaster closes,
// and the channel is closed then. Subscribing to a closed broadcaster returns
// an already closed channel.
func (b *Broadcaster) Subscribe(ctx context.Context) (<-chan onboarding.Snapshot, string) {
	subID := uuid.New().String()
	ch := make(chan onboarding.Snapshot, 1)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Publish offers snap to every subscriber without blocking. Each subscriber
// gets its own deep copy.
func (b *Broadcaster) Publish(snap onboarding.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		offerLatest(ch, snap.Clone())
		b.logger.Debug("published snapshot", "sub_id", subID, "status", snap.Status)
	}
}

// offerLatest puts v into a one-slot channel, replacing any pending value.
// Callers must be the only sender on ch.
func offerLatest[T any](ch chan T, v T) {
	for {
		select {
		case ch <- v:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Len returns the number of active subscribers.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close removes all subscribers and closes their channels. It is safe to call
// multiple times.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}

	b.logger.Debug("broadcaster closed")
}
