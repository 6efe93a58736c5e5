package channels

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/metrics"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

type fakeChannel struct {
	*BaseChannel
	mu        sync.Mutex
	sent      []bus.OutboundMessage
	forwarded []planner.PhotoRef
	failWith  error
}

func newFakeChannel(name string) *fakeChannel {
	return &fakeChannel{BaseChannel: NewBaseChannel(name, bus.NewMessageBus(), nil)}
}

func (f *fakeChannel) Start(ctx context.Context) error { f.setRunning(true); return nil }
func (f *fakeChannel) Stop(ctx context.Context) error  { f.setRunning(false); return nil }

func (f *fakeChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeChannel) Forward(ctx context.Context, userID string, ref planner.PhotoRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.forwarded = append(f.forwarded, ref)
	return nil
}

func newTestManager(t *testing.T) (*Manager, *metrics.Collector) {
	t.Helper()
	m := metrics.New()
	mgr, err := NewManager(config.DefaultConfig(), bus.NewMessageBus(), m)
	require.NoError(t, err)
	return mgr, m
}

func TestManager_NoTokenSkipsDiscord(t *testing.T) {
	mgr, _ := newTestManager(t)
	assert.Empty(t, mgr.GetEnabledChannels())
}

func TestManager_SendDefaultChannel(t *testing.T) {
	mgr, m := newTestManager(t)
	b := newFakeChannel("b")
	a := newFakeChannel("a")
	mgr.RegisterChannel("b", b)
	mgr.RegisterChannel("a", a)
	require.NoError(t, mgr.StartAll(context.Background()))

	require.NoError(t, mgr.Send(context.Background(), bus.OutboundMessage{UserID: "u", Content: "hi"}))
	require.Len(t, a.sent, 1)
	assert.Equal(t, "a", a.sent[0].Channel)
	assert.Empty(t, b.sent)

	require.NoError(t, mgr.Send(context.Background(), bus.OutboundMessage{Channel: "b", UserID: "u", Content: "yo"}))
	assert.Len(t, b.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboundMessages.WithLabelValues("a", "ok")))
}

func TestManager_UnknownChannel(t *testing.T) {
	mgr, _ := newTestManager(t)
	err := mgr.Send(context.Background(), bus.OutboundMessage{Channel: "nope"})
	assert.ErrorIs(t, err, ErrUnknownChannel)
}

func TestManager_BreakerOpensAfterFailures(t *testing.T) {
	mgr, m := newTestManager(t)
	ch := newFakeChannel("flaky")
	ch.failWith = errors.New("gateway down")
	mgr.RegisterChannel("flaky", ch)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		err := mgr.Send(ctx, bus.OutboundMessage{Channel: "flaky", Content: "x"})
		require.Error(t, err)
	}
	err := mgr.Send(ctx, bus.OutboundMessage{Channel: "flaky", Content: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker is open")
	assert.Equal(t, 5.0, testutil.ToFloat64(m.OutboundMessages.WithLabelValues("flaky", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OutboundMessages.WithLabelValues("flaky", "breaker_open")))

	status := mgr.GetStatus()["flaky"].(map[string]interface{})
	assert.Equal(t, "open", status["breaker"])
}

func TestManager_ForwardAndAllowList(t *testing.T) {
	mgr, _ := newTestManager(t)
	ch := newFakeChannel("discord")
	mgr.RegisterChannel("discord", ch)

	ref := planner.PhotoRef{Peer: "c1", Message: "m1", Description: "receipt"}
	require.NoError(t, mgr.Forward(context.Background(), "", "u", ref))
	assert.Equal(t, []planner.PhotoRef{ref}, ch.forwarded)

	mgr.SetAllowList([]string{"42"})
	assert.True(t, ch.IsAllowed("42"))
	assert.False(t, ch.IsAllowed("43"))
}

func TestBaseChannel_IsAllowed(t *testing.T) {
	ch := NewBaseChannel("x", bus.NewMessageBus(), []string{"@alice", "123"})
	assert.True(t, ch.IsAllowed("123"))
	assert.True(t, ch.IsAllowed("123|bob"))
	assert.True(t, ch.IsAllowed("999|alice"))
	assert.False(t, ch.IsAllowed("999"))

	open := NewBaseChannel("x", bus.NewMessageBus(), nil)
	assert.True(t, open.IsAllowed("anyone"))
}

func TestBaseChannel_HandleMessageRejectsStrangers(t *testing.T) {
	mb := bus.NewMessageBus()
	ch := NewBaseChannel("x", mb, []string{"1"})

	assert.False(t, ch.HandleMessage("2", "c", "m", "hi", nil, nil))
	assert.True(t, ch.HandleMessage("1", "c", "m", "hi", nil, nil))
	assert.Equal(t, 1, mb.Pending())
}
