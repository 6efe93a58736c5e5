package channels

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

func consume(t *testing.T, mb *bus.MessageBus) bus.InboundMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	require.True(t, ok, "expected an inbound message")
	return msg
}

func TestCLIChannel_PublishesLines(t *testing.T) {
	mb := bus.NewMessageBus()
	var out bytes.Buffer
	ch := NewCLIChannel(CLIOptions{User: "me", Out: &out}, mb)
	ch.opts.In = strings.NewReader("")
	require.NoError(t, ch.Start(context.Background()))
	<-ch.Done()

	require.NoError(t, ch.Send(context.Background(), bus.OutboundMessage{
		Content: "Choose an option:",
		Menu:    bus.Menu{{"Suggest", "List"}, {"Back to menu"}},
	}))
	assert.Contains(t, out.String(), "Choose an option:")
	assert.Contains(t, out.String(), "2 List")
	assert.Contains(t, out.String(), "3 Back to menu")

	assert.True(t, ch.handleLine("/2"))
	msg := consume(t, mb)
	assert.Equal(t, "List", msg.Content)
	assert.Equal(t, "me", msg.UserID)
	assert.Equal(t, "cli", msg.Channel)

	assert.True(t, ch.handleLine("/attach /tmp/receipt.jpg dinner receipt"))
	msg = consume(t, mb)
	assert.Equal(t, []string{"/tmp/receipt.jpg"}, msg.Attachments)
	assert.Equal(t, "dinner receipt", msg.Content)
	assert.Equal(t, "/tmp/receipt.jpg", msg.MessageID)

	assert.True(t, ch.handleLine("/9"))
	assert.Equal(t, "/9", consume(t, mb).Content)

	assert.False(t, ch.handleLine("exit"))
}

func TestCLIChannel_ScanLoopAndQuit(t *testing.T) {
	mb := bus.NewMessageBus()
	quit := make(chan struct{})
	ch := NewCLIChannel(CLIOptions{
		In:     strings.NewReader("hello\n\nquit\nignored\n"),
		Out:    &bytes.Buffer{},
		OnQuit: func() { close(quit) },
	}, mb)
	require.NoError(t, ch.Start(context.Background()))

	select {
	case <-quit:
	case <-time.After(time.Second):
		t.Fatal("OnQuit not called")
	}
	assert.Equal(t, "hello", consume(t, mb).Content)
	assert.Equal(t, 0, mb.Pending())
}

func TestCLIChannel_Forward(t *testing.T) {
	var out bytes.Buffer
	ch := NewCLIChannel(CLIOptions{In: strings.NewReader(""), Out: &out}, bus.NewMessageBus())
	require.NoError(t, ch.Start(context.Background()))
	<-ch.Done()

	require.NoError(t, ch.Forward(context.Background(), "local", planner.PhotoRef{Peer: "cli", Message: "/tmp/a.png"}))
	assert.Contains(t, out.String(), "/tmp/a.png")
	assert.Contains(t, out.String(), "[no description]")

	require.NoError(t, ch.Stop(context.Background()))
	assert.ErrorIs(t, ch.Send(context.Background(), bus.OutboundMessage{Content: "x"}), ErrNotRunning)
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, splitMessage("short", 10))

	lines := strings.Repeat("line of text\n", 10)
	chunks := splitMessage(lines, 30)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 30)
	}
	assert.Equal(t, strings.TrimSpace(lines), strings.TrimSpace(strings.Join(chunks, "\n")))

	word := strings.Repeat("é", 20)
	for _, c := range splitMessage(word, 7) {
		assert.True(t, strings.ToValidUTF8(c, "?") == c, "chunk split a rune: %q", c)
	}
}

func TestMenuComponents(t *testing.T) {
	menu := bus.Menu{{"1", "2", "3", "4", "5", "6", "7"}, {"Back to menu"}}
	rows := menuComponents(menu)
	require.Len(t, rows, 3)

	first := rows[0].(discordgo.ActionsRow)
	assert.Len(t, first.Components, 5)
	btn := first.Components[0].(discordgo.Button)
	assert.Equal(t, "menu:1", btn.CustomID)

	last := rows[2].(discordgo.ActionsRow).Components[0].(discordgo.Button)
	assert.Equal(t, discordgo.SecondaryButton, last.Style)
}
