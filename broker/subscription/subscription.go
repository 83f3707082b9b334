// Package subscription provides the queue of one broker subscriber.
package subscription

import "sync"

// Subscription is a buffered queue of messages. The queue itself is never
// closed; Done is closed instead.
type Subscription struct {
	queue chan any
	done  chan struct{}
	once  sync.Once
}

// New creates a Subscription buffering up to size messages.
func New(size int) *Subscription {
	return &Subscription{
		queue: make(chan any, size),
		done:  make(chan struct{}),
	}
}

// Send queues message. It blocks while the queue is full and reports false
// once the subscription is closed.
func (s *Subscription) Send(message any) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.queue <- message:
		return true
	case <-s.done:
		return false
	}
}

// Receive returns the queue to read messages from.
func (s *Subscription) Receive() <-chan any {
	return s.queue
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Close closes the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}
