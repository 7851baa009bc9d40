// Package config loads the gateway's JSON5 configuration file and overlays
// environment variables for secrets, matching the teacher's own
// config.Load(path) / config.Default() shape (§6, §9 "Global state").
package config

import (
	"encoding/json"
	"fmt"
	"sync"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON, matching the
// teacher's tolerant config parsing for allowlist fields that are sometimes
// authored as numeric chat IDs.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the gateway process: one workspace,
// one LLM provider, and the channel/tool/cron/git-update subsystems that
// hang off the agent loop (§3, §6). Multi-agent and multi-tenant
// configuration are explicitly out of scope (spec.md Non-goals).
type Config struct {
	Workspace WorkspaceConfig `json:"workspace"`
	Provider  ProviderConfig  `json:"provider"`
	Channels  ChannelsConfig  `json:"channels"`
	Tools     ToolsConfig     `json:"tools"`
	Sessions  SessionsConfig  `json:"sessions"`
	Summary   SummaryConfig   `json:"summary,omitempty"`
	Cron      CronConfig      `json:"cron,omitempty"`
	GitUpdate GitUpdateConfig `json:"git_update,omitempty"`
	Skills    SkillsConfig    `json:"skills,omitempty"`

	mu sync.RWMutex
}

// WorkspaceConfig locates the agent's workspace root and its access policy
// for the filesystem tools (§4.6).
type WorkspaceConfig struct {
	Path      string `json:"path"`
	Restrict  bool   `json:"restrict_to_workspace"`
	DataDir   string `json:"data_dir,omitempty"` // cron/git-update state; default "<path>/.nanobot"
	RecentDays int   `json:"memory_recent_days,omitempty"`
}

// ProviderConfig is the single configured LLM provider. Multi-vendor
// fan-out is out of scope; one OpenAI-compatible adapter is configured by
// name + base URL (§9 "Global state", internal/providers).
type ProviderConfig struct {
	Name        string  `json:"name"` // "anthropic", "openai", "openrouter", "groq", ...
	APIKey      string  `json:"-"`    // secret; env only
	APIBase     string  `json:"api_base,omitempty"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
}

// SummaryConfig configures the dual-threshold conversation summarizer
// (§4.4). If Trigger <= Retain, the implementation raises
// Trigger := Retain + 200 per spec.
type SummaryConfig struct {
	Enabled bool `json:"enabled"`
	Retain  int  `json:"retain_tokens,omitempty"`  // T1
	Trigger int  `json:"trigger_tokens,omitempty"` // T2
}

// SessionsConfig controls session file storage (§3, §6).
type SessionsConfig struct {
	Storage string `json:"storage,omitempty"` // default "<data_dir>/sessions"
}

// SkillsConfig locates the bundled (builtin) skills directory layered
// beneath the workspace's own skills/ subtree (§GLOSSARY).
type SkillsConfig struct {
	BuiltinDir string `json:"builtin_dir,omitempty"`
}

// CronConfig controls the cron scheduler's job store file (§4.8, §6).
type CronConfig struct {
	JobsFile string `json:"jobs_file,omitempty"` // default "<data_dir>/cron/jobs.json"
}

// GitUpdateConfig controls the git auto-updater (§4.9).
type GitUpdateConfig struct {
	StateFile string             `json:"state_file,omitempty"` // default "<data_dir>/git_update/state.json"
	Repos     []GitRepoConfig    `json:"repos,omitempty"`
}

// GitRepoConfig describes one repository under auto-update management.
type GitRepoConfig struct {
	ID             string   `json:"id"`
	Path           string   `json:"path"`
	Branch         string   `json:"branch"`
	Schedule       string   `json:"schedule"` // 5-field cron expression
	Enabled        bool     `json:"enabled"`
	OnUpdate       []string `json:"on_update,omitempty"`
	OnConflict     []string `json:"on_conflict,omitempty"`
	NotifyOnChange bool     `json:"notify_on_change,omitempty"`
}

// ToolsConfig controls native-tool policy and configured MCP servers
// (§4.6, §4.7).
type ToolsConfig struct {
	McpServers map[string]*MCPServerConfig `json:"mcp_servers,omitempty"`
}

// MCPServerConfig configures one external MCP capability server (§3, §4.7).
type MCPServerConfig struct {
	Transport       string            `json:"transport"` // "stdio" or "sse"
	Enabled         *bool             `json:"enabled,omitempty"`
	Command         string            `json:"command,omitempty"`
	Args            []string          `json:"args,omitempty"`
	Env             map[string]string `json:"env,omitempty"`
	URL             string            `json:"url,omitempty"`
	TimeoutSec      int               `json:"timeout_sec,omitempty"`
	ReconnectMaxTry int               `json:"reconnect_max_try,omitempty"`
}

// IsEnabled returns whether this MCP server is enabled (default true).
func (c *MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Workspace = src.Workspace
	c.Provider = src.Provider
	c.Channels = src.Channels
	c.Tools = src.Tools
	c.Sessions = src.Sessions
	c.Summary = src.Summary
	c.Cron = src.Cron
	c.GitUpdate = src.GitUpdate
	c.Skills = src.Skills
}

// WorkspacePath returns the expanded workspace path.
func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Workspace.Path)
}

// HasProvider reports whether a usable provider API key is configured.
func (c *Config) HasProvider() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Provider.APIKey != ""
}
