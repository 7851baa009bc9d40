package mcp

import (
	"context"
	"log/slog"
	"time"
)

// healthCheckInterval is how often the monitor polls each server's
// transport for liveness (§4.7).
const healthCheckInterval = 30 * time.Second

const (
	reconnectBaseDelay = 1 * time.Second
	reconnectMaxDelay  = 60 * time.Second
)

// HealthMonitor periodically checks every configured server's transport and
// reconnects with exponential backoff on failure, giving up after a
// server's configured attempt limit (§4.7).
type HealthMonitor struct {
	client  *Client
	servers []ServerConfig
	logger  *slog.Logger

	attempts map[string]int
	stop     chan struct{}
}

func NewHealthMonitor(client *Client, servers []ServerConfig, logger *slog.Logger) *HealthMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthMonitor{
		client:   client,
		servers:  servers,
		logger:   logger,
		attempts: make(map[string]int),
		stop:     make(chan struct{}),
	}
}

// Run blocks, polling on healthCheckInterval until the context is canceled
// or Stop is called.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.checkAll(ctx)
		}
	}
}

func (m *HealthMonitor) Stop() {
	close(m.stop)
}

func (m *HealthMonitor) checkAll(ctx context.Context) {
	for _, cfg := range m.servers {
		if !cfg.Enabled {
			continue
		}
		if m.client.IsConnected(cfg.Name) {
			m.attempts[cfg.Name] = 0
			continue
		}
		m.attemptReconnect(ctx, cfg)
	}
}

// attemptReconnect applies exponential backoff (base * 2^attempts, capped at
// max) and gives up once the server's attempt limit is reached.
func (m *HealthMonitor) attemptReconnect(ctx context.Context, cfg ServerConfig) {
	attempts := m.attempts[cfg.Name]
	maxAttempts := cfg.ReconnectMaxTry
	if maxAttempts > 0 && attempts >= maxAttempts {
		return
	}

	delay := reconnectBaseDelay
	for i := 0; i < attempts && delay < reconnectMaxDelay; i++ {
		delay *= 2
	}
	if delay > reconnectMaxDelay {
		delay = reconnectMaxDelay
	}
	if attempts > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}

	m.attempts[cfg.Name] = attempts + 1
	if err := m.client.Reconnect(ctx, cfg.Name); err != nil {
		m.logger.Warn("mcp reconnect failed", "server", cfg.Name, "attempt", attempts+1, "err", err)
		return
	}
	m.logger.Info("mcp reconnected", "server", cfg.Name, "attempts", attempts+1)
	m.attempts[cfg.Name] = 0
}
