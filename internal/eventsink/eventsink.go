// Package eventsink defines the external event-publishing collaborator
// described in spec §6: "an event sink with send(topic, payload) (best-effort,
// asynchronous); failures are swallowed."
//
// Grounded on the teacher's daemon event bus (cmd/beads/daemon event
// broadcast to SSE clients), simplified here to the single method the spec
// names and backed by a channel-fed fan-out instead of the teacher's
// subscriber registry, since C5 is the only producer in this module.
package eventsink

import (
	"context"

	"github.com/djhieudonald74-stack/asset-registry/internal/telemetry"
)

// Sink publishes a topic/payload pair. Implementations must not block the
// caller and must swallow their own errors (spec §5: "the event sink is a
// fire-and-forget publisher; failures are swallowed").
type Sink interface {
	Send(ctx context.Context, topic string, payload any)
}

// Noop discards every event; the zero value is ready to use.
type Noop struct{}

func (Noop) Send(context.Context, string, any) {}

// Logging publishes events as structured log lines at debug level, the way a
// development deployment would observe the event stream without a real SSE
// subscriber attached.
type Logging struct{}

func (Logging) Send(ctx context.Context, topic string, payload any) {
	telemetry.L(ctx).Debug().Str("topic", topic).Interface("payload", payload).Msg("event")
}

// Chan fans events out to subscribers over a buffered channel, the shape an
// HTTP SSE handler drains from. Send drops the event rather than blocking
// when the buffer is full, honoring the best-effort contract.
type Chan struct {
	ch chan Event
}

// Event is one published occurrence.
type Event struct {
	Topic   string
	Payload any
}

// NewChan creates a Chan-backed sink with the given buffer size.
func NewChan(buffer int) *Chan {
	return &Chan{ch: make(chan Event, buffer)}
}

func (c *Chan) Send(_ context.Context, topic string, payload any) {
	select {
	case c.ch <- Event{Topic: topic, Payload: payload}:
	default:
	}
}

// Events exposes the receive side for subscribers (e.g. an SSE handler).
func (c *Chan) Events() <-chan Event {
	return c.ch
}
