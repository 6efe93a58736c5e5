package channels

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/chzyer/readline"
	"github.com/google/uuid"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

const cliChatID = "cli"

var (
	botStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#00CC66")).Bold(true)
	mutedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
	menuButtonStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#5F87FF")).
			Padding(0, 1)
)

// CLIOptions configures the terminal channel. A nil In reads the terminal
// through readline.
type CLIOptions struct {
	User        string
	In          io.Reader
	Out         io.Writer
	HistoryFile string
	// OnQuit runs when the user types exit/quit or closes input.
	OnQuit func()
}

// CLIChannel is a single-user terminal transport. Menu buttons are pressed
// by typing their label or "/N" for the Nth button; "/attach <path> [text]"
// sends a file reference.
type CLIChannel struct {
	*BaseChannel
	opts CLIOptions

	outMu    sync.Mutex
	lastMenu []string
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewCLIChannel(opts CLIOptions, messageBus *bus.MessageBus) *CLIChannel {
	if opts.User == "" {
		opts.User = "local"
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	if opts.HistoryFile == "" {
		opts.HistoryFile = filepath.Join(os.TempDir(), ".planbot_history")
	}
	return &CLIChannel{
		BaseChannel: NewBaseChannel("cli", messageBus, nil),
		opts:        opts,
	}
}

func (c *CLIChannel) Start(ctx context.Context) error {
	readCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.setRunning(true)

	go func() {
		defer close(c.done)
		c.readLoop(readCtx)
		if c.opts.OnQuit != nil {
			c.opts.OnQuit()
		}
	}()
	return nil
}

func (c *CLIChannel) Stop(ctx context.Context) error {
	c.setRunning(false)
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Done is closed once the input loop has ended.
func (c *CLIChannel) Done() <-chan struct{} {
	return c.done
}

func (c *CLIChannel) readLoop(ctx context.Context) {
	if c.opts.In != nil {
		c.scanLoop(ctx, c.opts.In)
		return
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "you> ",
		HistoryFile:     c.opts.HistoryFile,
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		logger.WarnCF("cli", "Readline unavailable, falling back to plain input", map[string]interface{}{
			"error": err.Error(),
		})
		c.scanLoop(ctx, os.Stdin)
		return
	}
	defer rl.Close()

	go func() {
		<-ctx.Done()
		rl.Close()
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				return
			}
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if !c.handleLine(line) {
			return
		}
	}
}

func (c *CLIChannel) scanLoop(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if !c.handleLine(scanner.Text()) {
			return
		}
	}
}

// handleLine publishes one typed line; false ends the session.
func (c *CLIChannel) handleLine(line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return true
	}
	if input == "exit" || input == "quit" {
		return false
	}

	var attachments []string
	switch {
	case strings.HasPrefix(input, "/attach "):
		rest := strings.TrimSpace(strings.TrimPrefix(input, "/attach "))
		path, desc, _ := strings.Cut(rest, " ")
		attachments = []string{path}
		input = strings.TrimSpace(desc)
	case strings.HasPrefix(input, "/"):
		if n, err := strconv.Atoi(input[1:]); err == nil {
			if label, ok := c.menuButton(n); ok {
				input = label
			}
		}
	}

	// A saved attachment is addressed by its path.
	messageID := "cli-" + uuid.NewString()
	if len(attachments) > 0 {
		messageID = attachments[0]
	}
	c.HandleMessage(c.opts.User, cliChatID, messageID, input, attachments, nil)
	return true
}

func (c *CLIChannel) menuButton(n int) (string, bool) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if n < 1 || n > len(c.lastMenu) {
		return "", false
	}
	return c.lastMenu[n-1], true
}

func (c *CLIChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()

	var b strings.Builder
	b.WriteString(botStyle.Render("planbot>"))
	b.WriteString(" ")
	b.WriteString(msg.Content)
	b.WriteString("\n")
	if len(msg.Menu) > 0 {
		c.lastMenu = msg.Menu.Labels()
		b.WriteString(renderMenu(msg.Menu))
		b.WriteString("\n")
	}
	_, err := io.WriteString(c.opts.Out, b.String())
	return err
}

func (c *CLIChannel) Forward(ctx context.Context, userID string, ref planner.PhotoRef) error {
	if !c.IsRunning() {
		return ErrNotRunning
	}
	c.outMu.Lock()
	defer c.outMu.Unlock()
	_, err := fmt.Fprintf(c.opts.Out, "%s 📎 %s %s\n", botStyle.Render("planbot>"), ref.Message, mutedStyle.Render(ref.Label()))
	return err
}

func renderMenu(menu bus.Menu) string {
	rows := make([]string, 0, len(menu))
	n := 1
	for _, row := range menu {
		buttons := make([]string, 0, len(row))
		for _, label := range row {
			buttons = append(buttons, menuButtonStyle.Render(fmt.Sprintf("%d %s", n, label)))
			n++
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, buttons...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}
