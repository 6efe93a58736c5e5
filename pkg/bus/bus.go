package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MessageBus queues inbound turns between the transports and the
// conversation engine. Replies do not travel through the bus: the engine and
// the scheduler call the channel manager synchronously.
type MessageBus struct {
	inbound chan InboundMessage
	closed  bool
	dropped atomic.Uint64
	mu      sync.RWMutex
}

const (
	inboundBuffer  = 100
	publishTimeout = 100 * time.Millisecond
)

func NewMessageBus() *MessageBus {
	return &MessageBus{
		inbound: make(chan InboundMessage, inboundBuffer),
	}
}

// PublishInbound enqueues msg, waiting briefly when the buffer is full and
// counting the message as dropped if it still does not fit.
func (mb *MessageBus) PublishInbound(msg InboundMessage) bool {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if mb.closed {
		return false
	}

	select {
	case mb.inbound <- msg:
		return true
	default:
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case mb.inbound <- msg:
			return true
		case <-timer.C:
			mb.dropped.Add(1)
			return false
		}
	}
}

// ConsumeInbound blocks for the next message. ok is false once the bus is
// closed or ctx is done.
func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg, ok := <-mb.inbound:
		if !ok {
			return InboundMessage{}, false
		}
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

func (mb *MessageBus) Close() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return
	}
	mb.closed = true
	close(mb.inbound)
}

func (mb *MessageBus) DroppedInbound() uint64 {
	return mb.dropped.Load()
}

// Pending is the number of queued messages not yet consumed.
func (mb *MessageBus) Pending() int {
	return len(mb.inbound)
}
