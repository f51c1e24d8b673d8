package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink is the bounded outbound queue of one connection.
// Consume never blocks: a full buffer marks the consumer as slow and closes
// the sink, the transport then drops the socket.
type ConnectionSink struct {
	mu     sync.Mutex
	events chan event.DomainEvent
	done   chan struct{}
	closed bool
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &ConnectionSink{
		events: make(chan event.DomainEvent, bufferSize),
		done:   make(chan struct{}),
	}
}

// Consume is called by the relay and the broadcaster.
// Redirect the event through the owner of the channel, the write pump takes
// it from there.
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSinkClosed
	}
	select {
	case s.events <- e:
		return nil
	default:
		s.closeLocked()
		return errors.ErrSlowConsumer
	}
}

// Events is drained by the write pump. It is never closed, select on Done.
func (s *ConnectionSink) Events() <-chan event.DomainEvent {
	return s.events
}

// Done is closed once the sink stops accepting events.
func (s *ConnectionSink) Done() <-chan struct{} {
	return s.done
}

// Close is idempotent.
func (s *ConnectionSink) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *ConnectionSink) closeLocked() {
	if !s.closed {
		s.closed = true
		close(s.done)
	}
}
