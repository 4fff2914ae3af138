package eventstream_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"menuboard/internal/eventstream"
)

func receive[T any, P any](t *testing.T, ch <-chan eventstream.Event[T, P]) eventstream.Event[T, P] {
	t.Helper()
	select {
	case evt, ok := <-ch:
		require.True(t, ok, "channel closed before event arrived")
		return evt
	case <-time.After(time.Second):
		t.Fatal("did not receive event within timeout")
	}
	return eventstream.Event[T, P]{}
}

func TestInMemoryPublishSubscribe(t *testing.T) {
	streamer := eventstream.NewInMemory[string, int](0)
	defer streamer.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all, err := streamer.Subscribe(ctx, nil)
	require.NoError(t, err)
	onlyProducts, err := streamer.Subscribe(ctx, func(topic string) bool { return topic == "product" })
	require.NoError(t, err)
	require.Equal(t, 2, streamer.Subscribers())

	streamer.Publish("category", 1)
	streamer.Publish("product", 2, 3)

	require.Equal(t, eventstream.Event[string, int]{Topic: "category", Payload: 1}, receive(t, all))
	require.Equal(t, 2, receive(t, all).Payload)
	require.Equal(t, 3, receive(t, all).Payload)

	first := receive(t, onlyProducts)
	require.Equal(t, "product", first.Topic)
	require.Equal(t, 2, first.Payload)
	require.Equal(t, 3, receive(t, onlyProducts).Payload)
}

func TestInMemoryDropsWhenBufferFull(t *testing.T) {
	streamer := eventstream.NewInMemory[string, int](1)
	defer streamer.Shutdown()

	ch, err := streamer.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	streamer.Publish("t", 1, 2, 3)
	require.Equal(t, uint64(2), streamer.Dropped())
	require.Equal(t, 1, receive(t, ch).Payload)
}

func TestInMemoryContextCancellationClosesChannel(t *testing.T) {
	streamer := eventstream.NewInMemory[string, int](0)
	defer streamer.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := streamer.Subscribe(ctx, nil)
	require.NoError(t, err)
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok, "expected closed channel")
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after cancellation")
	}
	require.Eventually(t, func() bool { return streamer.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInMemoryShutdown(t *testing.T) {
	streamer := eventstream.NewInMemory[string, int](0)
	ch, err := streamer.Subscribe(context.Background(), nil)
	require.NoError(t, err)

	streamer.Shutdown()
	streamer.Shutdown()

	_, ok := <-ch
	require.False(t, ok)

	_, err = streamer.Subscribe(context.Background(), nil)
	require.ErrorIs(t, err, eventstream.ErrClosed)

	streamer.Publish("ignored", 1)
}
