// Package observe provides a publish/subscribe value holder.
package observe

import "sync"

// Value holds the latest published value of T and fans it out to
// subscribers. Each subscriber has a one-slot mailbox: a subscriber that
// falls behind sees the newest value, not every intermediate one.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[*Subscription[T]]struct{}
}

// NewValue returns a Value holding initial.
func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[*Subscription[T]]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set stores x and notifies every current subscriber. It never blocks on a
// slow subscriber.
func (v *Value[T]) Set(x T) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cur = x
	for s := range v.subs {
		s.offer(x)
	}
}

// Subscribe registers a subscriber. The current value is delivered first.
func (v *Value[T]) Subscribe() *Subscription[T] {
	s := &Subscription[T]{ch: make(chan T, 1), parent: v}
	s.C = s.ch

	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs[s] = struct{}{}
	s.offer(v.cur)
	return s
}

// Subscribers returns the number of open subscriptions.
func (v *Value[T]) Subscribers() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.subs)
}

func (v *Value[T]) unsubscribe(s *Subscription[T]) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.subs[s]; ok {
		delete(v.subs, s)
		close(s.ch)
	}
}

// Subscription receives values published on a Value. C is closed by Close.
type Subscription[T any] struct {
	C <-chan T

	ch     chan T
	parent *Value[T]
}

// Close detaches the subscription and closes C. It is safe to call twice.
func (s *Subscription[T]) Close() {
	s.parent.unsubscribe(s)
}

// offer replaces any undelivered value with x. Callers hold parent.mu, so
// there is a single sender.
func (s *Subscription[T]) offer(x T) {
	select {
	case s.ch <- x:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- x
}
