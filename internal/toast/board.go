// Package toast implements the keyed notification board shown to menu
// administrators while remote operations settle.
package toast

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"menuboard/internal/eventstream"
	"menuboard/pkg/domain"
)

// DefaultDismissDelay is how long success and error toasts stay visible.
const DefaultDismissDelay = 4000 * time.Millisecond

// Notification is published for every post and every removal.
type Notification struct {
	Toast     domain.Toast
	Dismissed bool
}

// Option configures a Board.
type Option func(*Board)

// WithDismissDelay overrides DefaultDismissDelay. Zero disables auto-dismiss.
func WithDismissDelay(d time.Duration) Option {
	return func(b *Board) { b.delay = d }
}

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Board) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Board holds the active toasts in first-post order.
type Board struct {
	mu     sync.Mutex
	toasts []domain.Toast
	timers map[string]*time.Timer
	delay  time.Duration
	logger *slog.Logger
	stream *eventstream.InMemory[domain.ToastType, Notification]
}

// NewBoard constructs an empty board.
func NewBoard(opts ...Option) *Board {
	b := &Board{
		timers: make(map[string]*time.Timer),
		delay:  DefaultDismissDelay,
		logger: slog.New(slog.DiscardHandler),
		stream: eventstream.NewInMemory[domain.ToastType, Notification](256),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Post inserts a toast or replaces the one with the same key in place.
// Terminal toasts are removed after the dismiss delay.
func (b *Board) Post(t domain.Toast) {
	b.mu.Lock()
	idx := slices.IndexFunc(b.toasts, func(existing domain.Toast) bool { return existing.Key == t.Key })
	if idx >= 0 {
		b.toasts[idx] = t
	} else {
		b.toasts = append(b.toasts, t)
	}
	if timer, ok := b.timers[t.Key]; ok {
		timer.Stop()
		delete(b.timers, t.Key)
	}
	if t.Type.Terminal() && b.delay > 0 {
		key := t.Key
		b.timers[key] = time.AfterFunc(b.delay, func() { b.expire(key, t) })
	}
	b.mu.Unlock()

	b.logger.Debug("toast posted", "key", t.Key, "type", t.Type, "message", t.Message)
	b.stream.Publish(t.Type, Notification{Toast: t})
}

// expire removes key only if it still holds the toast that scheduled it.
func (b *Board) expire(key string, scheduled domain.Toast) {
	b.mu.Lock()
	idx := slices.IndexFunc(b.toasts, func(existing domain.Toast) bool { return existing.Key == key })
	if idx < 0 || b.toasts[idx] != scheduled {
		b.mu.Unlock()
		return
	}
	b.toasts = slices.Delete(b.toasts, idx, idx+1)
	delete(b.timers, key)
	b.mu.Unlock()

	b.stream.Publish(scheduled.Type, Notification{Toast: scheduled, Dismissed: true})
}

// Dismiss removes a toast immediately.
func (b *Board) Dismiss(key string) bool {
	b.mu.Lock()
	idx := slices.IndexFunc(b.toasts, func(existing domain.Toast) bool { return existing.Key == key })
	if idx < 0 {
		b.mu.Unlock()
		return false
	}
	removed := b.toasts[idx]
	b.toasts = slices.Delete(b.toasts, idx, idx+1)
	if timer, ok := b.timers[key]; ok {
		timer.Stop()
		delete(b.timers, key)
	}
	b.mu.Unlock()

	b.stream.Publish(removed.Type, Notification{Toast: removed, Dismissed: true})
	return true
}

// List returns the active toasts in first-post order.
func (b *Board) List() []domain.Toast {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.toasts)
}

// Get returns the active toast for key.
func (b *Board) Get(key string) (domain.Toast, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := slices.IndexFunc(b.toasts, func(existing domain.Toast) bool { return existing.Key == key })
	if idx < 0 {
		return domain.Toast{}, false
	}
	return b.toasts[idx], true
}

// Subscribe streams notifications. A nil filter receives every type.
func (b *Board) Subscribe(ctx context.Context, filter eventstream.TopicFilter[domain.ToastType]) (<-chan eventstream.Event[domain.ToastType, Notification], error) {
	return b.stream.Subscribe(ctx, filter)
}

// Close stops pending timers and closes subscriptions.
func (b *Board) Close() {
	b.mu.Lock()
	for key, timer := range b.timers {
		timer.Stop()
		delete(b.timers, key)
	}
	b.mu.Unlock()
	b.stream.Shutdown()
}
