// Package broker fans messages out to in-process subscribers by topic.
package broker

import (
	"sync"

	"roomcast/broker/channel"
	"roomcast/broker/subscription"
)

// Broker keeps a channel per topic.
type Broker struct {
	mu       sync.RWMutex
	channels map[Topic]*channel.Channel
}

// New creates a new Broker.
func New() *Broker {
	return &Broker{
		channels: make(map[Topic]*channel.Channel),
	}
}

// Publish delivers message to every subscriber of topic, in subscription
// order. It blocks until each live subscriber accepted it.
func (b *Broker) Publish(topic Topic, message any) {
	b.mu.RLock()
	ch, ok := b.channels[topic]
	b.mu.RUnlock()
	if !ok {
		return
	}
	ch.SendAll(message)
}

// Subscribe returns one subscription receiving the messages of all given
// topics. Messages published from one goroutine keep their order across topics.
func (b *Broker) Subscribe(size int, topics ...Topic) *subscription.Subscription {
	sub := subscription.New(size)

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		ch, ok := b.channels[t]
		if !ok {
			ch = channel.New()
			b.channels[t] = ch
		}
		ch.AddSubscription(sub)
	}
	return sub
}

// Unsubscribe removes the subscription from every topic and closes it.
func (b *Broker) Unsubscribe(sub *subscription.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.channels {
		ch.RemoveSubscription(sub)
	}
	sub.Close()
}
