// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"sync"

	"github.com/ariana-dot-dev/ariana/lib/streamapi"
)

// ErrClosed is returned by operations on a closed EventBus or Transport.
var ErrClosed = errors.New("transport closed")

// Event is something the stream orchestrator must act on. The concrete
// types are ClosedEvent, StartStreamEvent, RecvPacketEvent,
// SendSignalingEvent, and RequestIDREvent.
type Event interface {
	isEvent()
}

// ClosedEvent reports that the stream is over: the peer connection
// closed or the termination grace period ran out.
type ClosedEvent struct{}

// StartStreamEvent carries the client's stream parameters. Its video
// formats are already sanitized.
type StartStreamEvent struct {
	Settings streamapi.StartStream
}

// RecvPacketEvent carries one decoded input packet.
type RecvPacketEvent struct {
	Channel ChannelID
	Packet  InboundPacket
}

// SendSignalingEvent carries a message for the browser.
type SendSignalingEvent struct {
	Message streamapi.ServerMessage
}

// RequestIDREvent asks the host encoder for a key frame, because the
// browser reported picture loss or frames were dropped.
type RequestIDREvent struct{}

func (ClosedEvent) isEvent()        {}
func (StartStreamEvent) isEvent()   {}
func (RecvPacketEvent) isEvent()    {}
func (SendSignalingEvent) isEvent() {}
func (RequestIDREvent) isEvent()    {}

// EventBus is a bounded queue of events from the transport's callbacks
// to the orchestrator. Producers block while it is full.
type EventBus struct {
	events    chan Event
	closed    chan struct{}
	closeOnce sync.Once
}

// NewEventBus returns an EventBus holding up to capacity undelivered
// events.
func NewEventBus(capacity int) *EventBus {
	return &EventBus{
		events: make(chan Event, capacity),
		closed: make(chan struct{}),
	}
}

// Send queues event, blocking while the bus is full. It fails with
// ErrClosed once the bus is closed, or with the context's error.
func (b *EventBus) Send(ctx context.Context, event Event) error {
	select {
	case <-b.closed:
		return ErrClosed
	default:
	}

	select {
	case b.events <- event:
		return nil
	case <-b.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Poll returns the next event. Events queued before Close are still
// delivered; after that Poll returns ErrClosed.
func (b *EventBus) Poll(ctx context.Context) (Event, error) {
	select {
	case event := <-b.events:
		return event, nil
	default:
	}

	select {
	case event := <-b.events:
		return event, nil
	case <-b.closed:
		select {
		case event := <-b.events:
			return event, nil
		default:
			return nil, ErrClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops the bus. Blocked senders return ErrClosed. Safe to call
// more than once.
func (b *EventBus) Close() {
	b.closeOnce.Do(func() { close(b.closed) })
}

// Len returns the number of queued events.
func (b *EventBus) Len() int {
	return len(b.events)
}
