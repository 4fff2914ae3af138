package eventstream

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel capacity. A full menu reload
// publishes one change per record in a short burst.
const DefaultBuffer = 4096

type subscriber[Topic any, Payload any] struct {
	ctx    context.Context
	filter TopicFilter[Topic]
	ch     chan Event[Topic, Payload]
	closed atomic.Bool
}

// InMemory is a channel-backed Streamer.
type InMemory[Topic any, Payload any] struct {
	mu          sync.RWMutex
	subscribers map[*subscriber[Topic, Payload]]struct{}
	buffer      int
	dropped     atomic.Uint64
	closed      atomic.Bool
}

// NewInMemory creates a streamer with the given per-subscriber buffer. A
// non-positive buffer selects DefaultBuffer.
func NewInMemory[Topic any, Payload any](buffer int) *InMemory[Topic, Payload] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &InMemory[Topic, Payload]{
		subscribers: make(map[*subscriber[Topic, Payload]]struct{}),
		buffer:      buffer,
	}
}

func (s *InMemory[Topic, Payload]) Publish(topic Topic, payloads ...Payload) {
	if s.closed.Load() || len(payloads) == 0 {
		return
	}

	s.mu.RLock()
	subs := make([]*subscriber[Topic, Payload], 0, len(s.subscribers))
	for sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.RUnlock()

	for _, sub := range subs {
		if sub.closed.Load() {
			continue
		}
		if !sub.filter(topic) {
			continue
		}
		for _, payload := range payloads {
			s.trySend(sub, Event[Topic, Payload]{Topic: topic, Payload: payload})
		}
	}
}

func (s *InMemory[Topic, Payload]) Subscribe(ctx context.Context, filter TopicFilter[Topic]) (<-chan Event[Topic, Payload], error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if filter == nil {
		filter = func(Topic) bool { return true }
	}

	sub := &subscriber[Topic, Payload]{
		ctx:    ctx,
		filter: filter,
		ch:     make(chan Event[Topic, Payload], s.buffer),
	}

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.subscribers[sub] = struct{}{}
	s.mu.Unlock()

	go s.monitorContext(sub)

	return sub.ch, nil
}

func (s *InMemory[Topic, Payload]) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for sub := range s.subscribers {
		if sub.closed.CompareAndSwap(false, true) {
			close(sub.ch)
		}
	}
	s.subscribers = nil
}

// Subscribers reports the number of live subscriptions.
func (s *InMemory[Topic, Payload]) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

// Dropped reports how many events were discarded because a buffer was full.
func (s *InMemory[Topic, Payload]) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *InMemory[Topic, Payload]) monitorContext(sub *subscriber[Topic, Payload]) {
	<-sub.ctx.Done()
	s.removeSubscriber(sub)
}

func (s *InMemory[Topic, Payload]) removeSubscriber(sub *subscriber[Topic, Payload]) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.subscribers == nil {
		return
	}
	if _, ok := s.subscribers[sub]; !ok {
		return
	}
	delete(s.subscribers, sub)
	if sub.closed.CompareAndSwap(false, true) {
		close(sub.ch)
	}
}

func (s *InMemory[Topic, Payload]) trySend(sub *subscriber[Topic, Payload], evt Event[Topic, Payload]) {
	// a concurrent removeSubscriber may close the channel between the closed
	// check and the send
	defer func() {
		if r := recover(); r != nil {
			sub.closed.Store(true)
		}
	}()

	select {
	case sub.ch <- evt:
	default:
		s.dropped.Add(1)
	}
}
