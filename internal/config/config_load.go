package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults (§6, §4.4 thresholds).
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{
			Path:       "~/.nanobot/workspace",
			Restrict:   true,
			RecentDays: 3,
		},
		Provider: ProviderConfig{
			Name:        "anthropic",
			Model:       "claude-sonnet-4-5-20250929",
			MaxTokens:   8192,
			Temperature: 0.7,
		},
		Summary: SummaryConfig{
			Enabled: true,
			Retain:  3000,
			Trigger: 4000,
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars for secrets.
// A missing file is not an error: defaults plus env overrides are returned.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			cfg.applyDerivedPaths()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDerivedPaths()
	return cfg, nil
}

// applyEnvOverrides overlays secrets from the environment. Env vars always
// win over file values, and secrets are never read from the config file
// itself (json:"-" on every such field).
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	envStr("NANOBOT_PROVIDER_API_KEY", &c.Provider.APIKey)
	envStr("NANOBOT_PROVIDER_API_BASE", &c.Provider.APIBase)
	envStr("NANOBOT_PROVIDER_NAME", &c.Provider.Name)
	envStr("NANOBOT_PROVIDER_MODEL", &c.Provider.Model)

	envStr("NANOBOT_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("NANOBOT_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("NANOBOT_WHATSAPP_BRIDGE_URL", &c.Channels.WhatsApp.BridgeURL)

	if c.Channels.Telegram.Token != "" {
		c.Channels.Telegram.Enabled = true
	}
	if c.Channels.Discord.Token != "" {
		c.Channels.Discord.Enabled = true
	}
	if c.Channels.WhatsApp.BridgeURL != "" {
		c.Channels.WhatsApp.Enabled = true
	}

	envStr("NANOBOT_WORKSPACE", &c.Workspace.Path)
	envStr("NANOBOT_SESSIONS_STORAGE", &c.Sessions.Storage)
}

// applyDerivedPaths fills in data-dir-relative defaults once the workspace
// path is known (§6 persisted-state layouts).
func (c *Config) applyDerivedPaths() {
	ws := ExpandHome(c.Workspace.Path)
	dataDir := c.Workspace.DataDir
	if dataDir == "" {
		dataDir = filepath.Join(ws, ".nanobot")
	} else {
		dataDir = ExpandHome(dataDir)
	}
	c.Workspace.DataDir = dataDir

	if c.Sessions.Storage == "" {
		c.Sessions.Storage = filepath.Join(dataDir, "sessions")
	} else {
		c.Sessions.Storage = ExpandHome(c.Sessions.Storage)
	}
	if c.Cron.JobsFile == "" {
		c.Cron.JobsFile = filepath.Join(dataDir, "cron", "jobs.json")
	}
	if c.GitUpdate.StateFile == "" {
		c.GitUpdate.StateFile = filepath.Join(dataDir, "git_update", "state.json")
	}
	if c.Summary.Trigger <= c.Summary.Retain {
		c.Summary.Trigger = c.Summary.Retain + 200
	}
}

// Save writes the config to a JSON file (secrets are never persisted: every
// secret field carries `json:"-"`).
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// ExpandHome replaces a leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
