package channels

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

var ErrNotRunning = errors.New("channel not running")

type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Send(ctx context.Context, msg bus.OutboundMessage) error
	// Forward re-delivers a previously saved attachment message to userID.
	Forward(ctx context.Context, userID string, ref planner.PhotoRef) error
	IsRunning() bool
	IsAllowed(senderID string) bool
	SetAllowList(list []string)
}

type BaseChannel struct {
	bus       *bus.MessageBus
	name      string
	mu        sync.RWMutex
	running   bool
	allowList []string
}

func NewBaseChannel(name string, bus *bus.MessageBus, allowList []string) *BaseChannel {
	return &BaseChannel{
		bus:       bus,
		name:      name,
		allowList: append([]string(nil), allowList...),
	}
}

func (c *BaseChannel) Name() string {
	return c.name
}

func (c *BaseChannel) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// SetAllowList replaces the allow-list; an empty list admits everyone.
func (c *BaseChannel) SetAllowList(list []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allowList = append([]string(nil), list...)
}

func (c *BaseChannel) IsAllowed(senderID string) bool {
	c.mu.RLock()
	allowList := c.allowList
	c.mu.RUnlock()

	if len(allowList) == 0 {
		return true
	}

	// Extract parts from compound senderID like "123456|username"
	idPart := senderID
	userPart := ""
	if idx := strings.Index(senderID, "|"); idx > 0 {
		idPart = senderID[:idx]
		userPart = senderID[idx+1:]
	}

	for _, allowed := range allowList {
		candidate := strings.TrimSpace(strings.TrimPrefix(allowed, "@"))
		if candidate == "" {
			continue
		}
		if candidate == senderID || candidate == idPart || (userPart != "" && candidate == userPart) {
			return true
		}
	}

	return false
}

// HandleMessage publishes an allowed user's turn to the bus.
func (c *BaseChannel) HandleMessage(userID, chatID, messageID, content string, attachments []string, metadata map[string]string) bool {
	if !c.IsAllowed(userID) {
		return false
	}

	msg := bus.InboundMessage{
		Channel:     c.name,
		UserID:      userID,
		ChatID:      chatID,
		MessageID:   messageID,
		Content:     content,
		Attachments: attachments,
		Metadata:    metadata,
	}

	return c.bus.PublishInbound(msg)
}

func (c *BaseChannel) setRunning(running bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = running
}
