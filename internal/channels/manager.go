package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

// Manager owns every registered channel's lifecycle and routes outbound
// messages from the bus to the right adapter.
type Manager struct {
	channels     map[string]Channel
	bus          bus.MessageRouter
	dispatchStop context.CancelFunc
	mu           sync.RWMutex
}

func NewManager(router bus.MessageRouter) *Manager {
	return &Manager{channels: make(map[string]Channel), bus: router}
}

// RegisterChannel adds a channel, normally called before StartAll.
func (m *Manager) RegisterChannel(name string, channel Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[name] = channel
}

func (m *Manager) GetChannel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// StartAll starts the outbound dispatch loop and every registered channel.
func (m *Manager) StartAll(ctx context.Context) error {
	m.mu.Lock()
	dispatchCtx, cancel := context.WithCancel(ctx)
	m.dispatchStop = cancel
	channels := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		channels[k] = v
	}
	m.mu.Unlock()

	go m.dispatchOutbound(dispatchCtx)

	for name, channel := range channels {
		if err := channel.Start(ctx); err != nil {
			slog.Error("channels: failed to start", "channel", name, "error", err)
		}
	}
	return nil
}

// StopAll stops the dispatch loop and every registered channel.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.Lock()
	if m.dispatchStop != nil {
		m.dispatchStop()
		m.dispatchStop = nil
	}
	channels := make(map[string]Channel, len(m.channels))
	for k, v := range m.channels {
		channels[k] = v
	}
	m.mu.Unlock()

	for name, channel := range channels {
		if err := channel.Stop(ctx); err != nil {
			slog.Error("channels: error stopping", "channel", name, "error", err)
		}
	}
	return nil
}

// dispatchOutbound drains the bus's outbound queue and hands each message to
// its channel, skipping internal (non-transport) channels.
func (m *Manager) dispatchOutbound(ctx context.Context) {
	for {
		msg, ok := m.bus.SubscribeOutbound(ctx)
		if !ok {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		if IsInternalChannel(msg.Channel) {
			continue
		}

		m.mu.RLock()
		channel, exists := m.channels[msg.Channel]
		m.mu.RUnlock()
		if !exists {
			slog.Warn("channels: unknown channel for outbound message", "channel", msg.Channel)
			continue
		}
		if err := channel.Send(ctx, msg); err != nil {
			slog.Error("channels: send failed", "channel", msg.Channel, "error", err)
		}
	}
}

// SendToChannel delivers a message to a specific channel by name, bypassing
// the bus — used by the git-update notification path.
func (m *Manager) SendToChannel(ctx context.Context, channelName, chatID, content string) error {
	m.mu.RLock()
	channel, exists := m.channels[channelName]
	m.mu.RUnlock()
	if !exists {
		return fmt.Errorf("channel %s not found", channelName)
	}
	return channel.Send(ctx, bus.OutboundMessage{Channel: channelName, ChatID: chatID, Content: content})
}

// GetEnabledChannels returns the names of every registered channel.
func (m *Manager) GetEnabledChannels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	return names
}
