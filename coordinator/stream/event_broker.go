// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: BUSL-1.1

// Package stream fans node update events out to SSE subscribers. Delivery is
// at-most-once and lossy: each subscriber owns a bounded queue, and a slow
// consumer loses its oldest pending events rather than blocking the
// publisher.
package stream

import (
	"context"
	"errors"
	"sync"

	"github.com/edgemesh/edgemesh/coordinator/structs"
	"github.com/hashicorp/go-hclog"
)

// DefaultSubscriberBuffer is the per-subscriber queue depth.
const DefaultSubscriberBuffer = 256

// ErrSubscriptionClosed is returned from Next once a subscription has been
// closed, either by Unsubscribe or by broker shutdown. The client should not
// resubscribe after broker shutdown.
var ErrSubscriptionClosed = errors.New("subscription closed by server")

// EventBroker broadcasts NodeUpdateEvents to a dynamic set of subscribers.
// Exactly one broker exists per coordinator process.
type EventBroker struct {
	logger hclog.Logger
	buffer int

	// mu guards the subscription set. Publish snapshots the set under mu
	// and delivers outside it, so subscribe/unsubscribe during a publish
	// is safe and that publish sees a consistent membership.
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool

	// pubMu serializes publishers so every subscriber observes events in
	// the same order.
	pubMu sync.Mutex
}

// NewEventBroker returns a broker whose subscribers buffer up to buffer
// events; buffer <= 0 selects DefaultSubscriberBuffer.
func NewEventBroker(logger hclog.Logger, buffer int) *EventBroker {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &EventBroker{
		logger: logger.Named("stream"),
		buffer: buffer,
		subs:   make(map[*Subscription]struct{}),
	}
}

// Subscription is one consumer's bounded view of the event stream.
type Subscription struct {
	events chan structs.NodeUpdateEvent

	// forceClosed is closed when the subscription is torn down; it wakes
	// any blocked Next call.
	forceClosed chan struct{}
	closeOnce   sync.Once

	unsub func()
}

// Subscribe registers a new subscriber and returns its subscription. The
// caller must Unsubscribe when done or the queue leaks until broker
// shutdown.
func (b *EventBroker) Subscribe() *Subscription {
	sub := &Subscription{
		events:      make(chan structs.NodeUpdateEvent, b.buffer),
		forceClosed: make(chan struct{}),
	}
	sub.unsub = func() { b.remove(sub) }

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		sub.close()
		return sub
	}
	b.subs[sub] = struct{}{}
	return sub
}

// Publish delivers the event to every current subscriber without blocking.
// A full subscriber queue drops its oldest pending event first.
func (b *EventBroker) Publish(event structs.NodeUpdateEvent) {
	b.pubMu.Lock()
	defer b.pubMu.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	snapshot := make([]*Subscription, 0, len(b.subs))
	for sub := range b.subs {
		snapshot = append(snapshot, sub)
	}
	b.mu.Unlock()

	for _, sub := range snapshot {
		for {
			select {
			case sub.events <- event:
			default:
				// Queue full: drop the oldest pending event and retry.
				// The consumer may race us for that slot, in which case
				// the retry succeeds immediately.
				select {
				case <-sub.events:
				default:
				}
				continue
			}
			break
		}
	}
}

// SubscriberCount reports current membership, for tests and the cluster
// summary.
func (b *EventBroker) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close tears down the broker and force-closes every subscription.
func (b *EventBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for sub := range b.subs {
		sub.close()
		delete(b.subs, sub)
	}
}

func (b *EventBroker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, sub)
}

// Next blocks until an event is available, the context is cancelled, or the
// subscription is closed. Buffered events remain readable after close until
// drained.
func (s *Subscription) Next(ctx context.Context) (structs.NodeUpdateEvent, error) {
	select {
	case event := <-s.events:
		return event, nil
	default:
	}

	select {
	case event := <-s.events:
		return event, nil
	case <-ctx.Done():
		return structs.NodeUpdateEvent{}, ctx.Err()
	case <-s.forceClosed:
		return structs.NodeUpdateEvent{}, ErrSubscriptionClosed
	}
}

// Unsubscribe removes the subscription from the broker and wakes any blocked
// Next. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.unsub()
	s.close()
}

func (s *Subscription) close() {
	s.closeOnce.Do(func() { close(s.forceClosed) })
}
