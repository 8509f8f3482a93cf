// ABOUTME: Tests for the latest-wins snapshot broadcaster
// ABOUTME: Covers fan-out, coalescing for slow subscribers, cancellation, and close

package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/coven-onboard/internal/onboarding"
)

func snapshotWith(status onboarding.Status) onboarding.Snapshot {
	return onboarding.Snapshot{Status: status, Stacks: []onboarding.StackRecommendation{{ID: "stack-a", Pros: []string{"fast"}}}}
}

func receiveSnapshot(t *testing.T, ch <-chan onboarding.Snapshot) onboarding.Snapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		require.True(t, ok, "channel closed")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for snapshot")
		return onboarding.Snapshot{}
	}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, id1 := b.Subscribe(t.Context())
	ch2, id2 := b.Subscribe(t.Context())
	assert.NotEqual(t, id1, id2)

	b.Publish(snapshotWith(onboarding.StatusSpecsDrafting))

	for _, ch := range []<-chan onboarding.Snapshot{ch1, ch2} {
		assert.Equal(t, onboarding.StatusSpecsDrafting, receiveSnapshot(t, ch).Status)
	}
}

func TestBroadcaster_SlowSubscriberGetsLatest(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context())
	b.Publish(snapshotWith(onboarding.StatusSpecsDrafting))
	b.Publish(snapshotWith(onboarding.StatusSpecsConfirmed))
	b.Publish(snapshotWith(onboarding.StatusStackSelected))

	assert.Equal(t, onboarding.StatusStackSelected, receiveSnapshot(t, ch).Status)
	select {
	case snap := <-ch:
		t.Fatalf("unexpected extra snapshot %s", snap.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SubscribersGetIndependentCopies(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context())
	ch2, _ := b.Subscribe(t.Context())
	b.Publish(snapshotWith(onboarding.StatusSpecsConfirmed))

	first := receiveSnapshot(t, ch1)
	first.Stacks[0].Pros[0] = "mutated"

	second := receiveSnapshot(t, ch2)
	assert.Equal(t, "fast", second.Stacks[0].Pros[0])
}

func TestBroadcaster_ContextCancelUnsubscribes(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)
	require.Equal(t, 1, b.Len())

	cancel()
	require.Eventually(t, func() bool { return b.Len() == 0 }, time.Second, time.Millisecond)

	_, ok := <-ch
	assert.False(t, ok, "channel is closed after unsubscribe")

	// Publishing with no subscribers is a no-op.
	b.Publish(snapshotWith(onboarding.StatusLocked))
}

func TestBroadcaster_UnsubscribeTwice(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	_, id := b.Subscribe(t.Context())
	b.Unsubscribe(id)
	b.Unsubscribe(id)
	assert.Zero(t, b.Len())
}

func TestBroadcaster_Close(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	b := NewBroadcaster(nil)
	ch, _ := b.Subscribe(context.Background())

	b.Close()
	b.Close()

	_, ok := <-ch
	assert.False(t, ok)

	late, _ := b.Subscribe(context.Background())
	_, ok = <-late
	assert.False(t, ok, "subscribing after close yields a closed channel")
	assert.Zero(t, b.Len())
}
