package bus

import (
	"context"
	"testing"
	"time"
)

func TestMessageBus_PublishInboundDropsWhenBufferFull(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for i := 0; i < cap(mb.inbound); i++ {
		mb.PublishInbound(InboundMessage{Channel: "test", UserID: "u", ChatID: "c", Content: "msg"})
	}

	if ok := mb.PublishInbound(InboundMessage{Channel: "test", UserID: "u", ChatID: "c", Content: "overflow"}); ok {
		t.Fatalf("expected overflow publish to report false")
	}
	if mb.DroppedInbound() != 1 {
		t.Fatalf("expected dropped inbound count 1, got %d", mb.DroppedInbound())
	}
	if mb.Pending() != cap(mb.inbound) {
		t.Fatalf("expected %d pending, got %d", cap(mb.inbound), mb.Pending())
	}
}

func TestMessageBus_PreservesArrivalOrder(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	for _, c := range []string{"Suggest", "2025", "3"} {
		mb.PublishInbound(InboundMessage{Channel: "test", UserID: "u", Content: c})
	}

	ctx := context.Background()
	for _, want := range []string{"Suggest", "2025", "3"} {
		msg, ok := mb.ConsumeInbound(ctx)
		if !ok || msg.Content != want {
			t.Fatalf("expected %q, got %q (ok=%v)", want, msg.Content, ok)
		}
	}
}

func TestMessageBus_ConsumeHonoursContext(t *testing.T) {
	mb := NewMessageBus()
	defer mb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatalf("expected consume to give up when context expires")
	}
}

func TestMessageBus_ClosedChannelsReturnFalse(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()
	mb.Close()

	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatalf("expected closed inbound consume to return ok=false")
	}
	if mb.PublishInbound(InboundMessage{Content: "late"}) {
		t.Fatalf("expected publish after close to return false")
	}
}
