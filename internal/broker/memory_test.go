package broker

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{})
}

func receive(t *testing.T, sub Subscription) Delivery {
	t.Helper()
	select {
	case d, ok := <-sub.C():
		require.True(t, ok, "subscription closed")
		return d
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivery")
		return Delivery{}
	}
}

func TestMemoryDeliversInQueueOrder(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(8, testLogger())
	require.NoError(t, b.AssertQueue(ctx, "q"))
	require.NoError(t, b.AssertQueue(ctx, "q"))

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, b.Publish(ctx, "q", []byte(msg)))
	}
	assert.Equal(t, 3, b.Depth("q"))

	sub, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	defer sub.Close()

	for _, want := range []string{"a", "b", "c"} {
		d := receive(t, sub)
		assert.Equal(t, want, string(d.Body))
		assert.Equal(t, "q", d.Queue)
	}
}

func TestMemoryRejectsUndeclaredQueues(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(0, testLogger())

	assert.ErrorIs(t, b.Publish(ctx, "missing", nil), ErrNoQueue)
	_, err := b.Subscribe(ctx, "missing")
	assert.ErrorIs(t, err, ErrNoQueue)
}

func TestMemoryBoundedQueue(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(1, testLogger())
	require.NoError(t, b.AssertQueue(ctx, "q"))

	require.NoError(t, b.Publish(ctx, "q", []byte("1")))
	assert.ErrorIs(t, b.Publish(ctx, "q", []byte("2")), ErrQueueFull)
}

func TestMemoryClose(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(4, testLogger())
	require.NoError(t, b.AssertQueue(ctx, "q"))
	sub, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	assert.ErrorIs(t, b.AssertQueue(ctx, "other"), ErrClosed)
	assert.ErrorIs(t, b.Publish(ctx, "q", nil), ErrClosed)
	_, err = b.Subscribe(ctx, "q")
	assert.ErrorIs(t, err, ErrClosed)

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription not closed with broker")
	}
}

func TestSubscriptionCloseEndsChannel(t *testing.T) {
	ctx := context.Background()
	b := NewMemory(4, testLogger())
	require.NoError(t, b.AssertQueue(ctx, "q"))
	sub, err := b.Subscribe(ctx, "q")
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	select {
	case _, ok := <-sub.C():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("subscription channel left open")
	}
}

func TestQueueNames(t *testing.T) {
	assert.Equal(t, "game.g1", GameQueue("g1"))
	assert.Equal(t, "game.g1.exchange", ExchangeQueue("g1"))
	assert.Equal(t, "game.g1.exchange.p9", PlayerQueue("g1", "p9"))
}
