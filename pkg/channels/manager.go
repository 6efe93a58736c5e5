// planbot - personal planner bot with scheduled reminders
// License: MIT
//
// Copyright (c) 2026 planbot contributors

package channels

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/dotsetgreg/planbot/pkg/bus"
	"github.com/dotsetgreg/planbot/pkg/config"
	"github.com/dotsetgreg/planbot/pkg/logger"
	"github.com/dotsetgreg/planbot/pkg/metrics"
	"github.com/dotsetgreg/planbot/pkg/planner"
)

// Sender delivers replies and reminders. An empty channel name selects the
// manager's default channel.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	Forward(ctx context.Context, channel, userID string, ref planner.PhotoRef) error
}

var ErrUnknownChannel = errors.New("unknown channel")

type Manager struct {
	channels map[string]Channel
	breakers map[string]*gobreaker.CircuitBreaker
	bus      *bus.MessageBus
	config   *config.Config
	metrics  *metrics.Collector
	timeout  time.Duration
	mu       sync.RWMutex
}

// NewManager builds the manager and the Discord channel when a token is
// configured. Other channels are added with RegisterChannel.
func NewManager(cfg *config.Config, messageBus *bus.MessageBus, m *metrics.Collector) (*Manager, error) {
	mgr := &Manager{
		channels: make(map[string]Channel),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		bus:      messageBus,
		config:   cfg,
		metrics:  m,
		timeout:  sendTimeout,
	}

	if err := mgr.initChannels(); err != nil {
		return nil, err
	}

	return mgr, nil
}

func (m *Manager) initChannels() error {
	logger.InfoC("channels", "Initializing channel manager")

	if m.config == nil || strings.TrimSpace(m.config.Channels.Discord.Token) == "" {
		logger.DebugC("channels", "Discord token not set, skipping Discord channel")
		return nil
	}

	discord, err := NewDiscordChannel(config.DiscordConfig{
		Token:     m.config.Channels.Discord.Token,
		AllowFrom: m.config.AllowFrom(),
	}, m.bus)
	if err != nil {
		return fmt.Errorf("initialize Discord channel: %w", err)
	}
	m.RegisterChannel("discord", discord)
	logger.InfoC("channels", "Discord channel initialized successfully")

	return nil
}

func newBreaker(name string) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WarnCF("channels", "Send breaker state changed", map[string]interface{}{
				"channel": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
}

func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.RLock()
	if len(m.channels) == 0 {
		m.mu.RUnlock()
		logger.WarnC("channels", "No channels enabled")
		return nil
	}
	channelsCopy := make(map[string]Channel, len(m.channels))
	for name, channel := range m.channels {
		channelsCopy[name] = channel
	}
	m.mu.RUnlock()

	logger.InfoC("channels", "Starting all channels")

	var started []string
	var startErrors []string
	for name, channel := range channelsCopy {
		logger.InfoCF("channels", "Starting channel", map[string]interface{}{"channel": name})
		if err := channel.Start(ctx); err != nil {
			logger.ErrorCF("channels", "Failed to start channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
			startErrors = append(startErrors, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		started = append(started, name)
	}

	if len(startErrors) > 0 {
		for _, name := range started {
			if err := channelsCopy[name].Stop(ctx); err != nil {
				logger.WarnCF("channels", "Failed to stop partially-started channel", map[string]interface{}{
					"channel": name,
					"error":   err.Error(),
				})
			}
		}
		return fmt.Errorf("failed to start channels: %s", strings.Join(startErrors, "; "))
	}

	logger.InfoCF("channels", "All channels started", map[string]interface{}{
		"count": len(started),
	})
	return nil
}

func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	logger.InfoC("channels", "Stopping all channels")

	for name, channel := range m.channels {
		if !channel.IsRunning() {
			continue
		}
		if err := channel.Stop(ctx); err != nil {
			logger.ErrorCF("channels", "Error stopping channel", map[string]interface{}{
				"channel": name,
				"error":   err.Error(),
			})
		}
	}

	logger.InfoC("channels", "All channels stopped")
	return nil
}

// Send delivers msg synchronously through its channel's breaker, bounded by
// the send timeout.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	channel, breaker, err := m.resolve(msg.Channel)
	if err != nil {
		return err
	}
	msg.Channel = channel.Name()

	return m.execute(ctx, channel.Name(), breaker, func(ctx context.Context) error {
		return channel.Send(ctx, msg)
	})
}

func (m *Manager) Forward(ctx context.Context, channelName, userID string, ref planner.PhotoRef) error {
	channel, breaker, err := m.resolve(channelName)
	if err != nil {
		return err
	}

	return m.execute(ctx, channel.Name(), breaker, func(ctx context.Context) error {
		return channel.Forward(ctx, userID, ref)
	})
}

func (m *Manager) execute(ctx context.Context, name string, breaker *gobreaker.CircuitBreaker, fn func(context.Context) error) error {
	sendCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, fn(sendCtx)
	})

	result := "ok"
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		result = "breaker_open"
	case err != nil:
		result = "error"
	}
	if m.metrics != nil {
		m.metrics.OutboundMessages.WithLabelValues(name, result).Inc()
	}
	if err != nil {
		return fmt.Errorf("send via %s: %w", name, err)
	}
	return nil
}

// resolve picks the named channel, or the default when name is empty.
func (m *Manager) resolve(name string) (Channel, *gobreaker.CircuitBreaker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if name == "" {
		name = m.defaultChannelLocked()
	}
	channel, ok := m.channels[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownChannel, name)
	}
	return channel, m.breakers[name], nil
}

// Default channel is discord when present, else the first by name.
func (m *Manager) defaultChannelLocked() string {
	if _, ok := m.channels["discord"]; ok {
		return "discord"
	}
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return ""
	}
	return names[0]
}

// SetAllowList pushes a reloaded allow-list to every channel.
func (m *Manager) SetAllowList(list []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, channel := range m.channels {
		channel.SetAllowList(list)
	}
}

func (m *Manager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := make(map[string]interface{})
	for name, channel := range m.channels {
		status[name] = map[string]interface{}{
			"enabled": true,
			"running": channel.IsRunning(),
			"breaker": m.breakers[name].State().String(),
		}
	}
	return status
}

func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AnyRunning reports whether at least one channel is up.
func (m *Manager) AnyRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, channel := range m.channels {
		if channel.IsRunning() {
			return true
		}
	}
	return false
}

func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
	m.breakers[name] = newBreaker(name)
}
