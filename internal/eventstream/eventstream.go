// Package eventstream provides a generic in-process publish/subscribe stream
// used for the change feed and toast notifications.
package eventstream

import (
	"context"
	"errors"
)

// ErrClosed is returned by Subscribe once the streamer has shut down.
var ErrClosed = errors.New("eventstream: streamer closed")

// TopicFilter reports whether a subscriber wants events for a topic.
type TopicFilter[Topic any] func(Topic) bool

// Event pairs a payload with the topic it was published on.
type Event[Topic any, Payload any] struct {
	Topic   Topic
	Payload Payload
}

// Streamer fans events out to subscribers.
type Streamer[Topic any, Payload any] interface {
	// Subscribe returns a channel closed when ctx is cancelled or the
	// streamer shuts down. A nil filter receives every topic.
	Subscribe(ctx context.Context, filter TopicFilter[Topic]) (<-chan Event[Topic, Payload], error)

	// Publish never blocks. Events are dropped for subscribers whose buffer
	// is full.
	Publish(topic Topic, payloads ...Payload)

	Shutdown()
}

var _ Streamer[string, int] = (*InMemory[string, int])(nil)
