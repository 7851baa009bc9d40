// Package context assembles the message list sent to the LLM: an identity
// and bootstrap-derived system prompt, the (optionally summarized) session
// history, and the current turn's user content (§4.3).
package context

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
)

// bootstrapFiles is the fixed, ordered set of optional files making up the
// second section of the system prompt (§4.3, §6).
var bootstrapFiles = []string{"AGENTS.md", "SOUL.md", "USER.md", "TOOLS.md", "IDENTITY.md"}

// sectionSeparator joins every top-level system-prompt section (§4.3).
const sectionSeparator = "\n\n---\n\n"

var imageExtMime = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
}

// Builder assembles the full message list handed to a Provider. Conversation
// summarization is a separate stage (internal/summary) run by the caller
// before history is passed to BuildMessages (§4.2, §4.3, §4.4).
type Builder struct {
	Workspace string
	Memory    *memory.Store
	Skills    *skills.Loader

	// MCPConnected reports whether a named MCP server is currently
	// connected, used to gate skill availability.
	MCPConnected func(server string) bool
}

// identity renders the first system-prompt section: current time and the
// resolved workspace path (§4.3).
func (b *Builder) identity(now time.Time) string {
	return fmt.Sprintf(
		"You are a personal agent running from the workspace at %s.\nCurrent time: %s.",
		b.Workspace, now.Format("2006-01-02 15:04 (Monday)"),
	)
}

// loadBootstrapFiles concatenates every bootstrap file that exists, each
// prefixed with its filename as an H2 (§4.3).
func (b *Builder) loadBootstrapFiles() string {
	var parts []string
	for _, name := range bootstrapFiles {
		data, err := os.ReadFile(filepath.Join(b.Workspace, name))
		if err != nil {
			continue
		}
		content := strings.TrimSpace(string(data))
		if content == "" {
			continue
		}
		parts = append(parts, fmt.Sprintf("## %s\n\n%s", name, content))
	}
	return strings.Join(parts, "\n\n")
}

// BuildSystemPrompt assembles the full system prompt: identity, bootstrap
// files, memory context, active skills, and the skills catalogue, joined by
// the section separator (§4.3).
func (b *Builder) BuildSystemPrompt(now time.Time) string {
	sections := []string{b.identity(now)}

	if bootstrap := b.loadBootstrapFiles(); bootstrap != "" {
		sections = append(sections, bootstrap)
	}
	if b.Memory != nil {
		if memCtx := b.Memory.Context(); memCtx != "" {
			sections = append(sections, memCtx)
		}
	}
	if b.Skills != nil {
		if active := b.Skills.AlwaysActiveContent(b.MCPConnected); active != "" {
			sections = append(sections, "## Active Skills\n\n"+active)
		}
		if catalogue := b.Skills.Catalogue(b.MCPConnected); catalogue != "" {
			sections = append(sections, "## Skills\n\n"+catalogue)
		}
	}

	return strings.Join(sections, sectionSeparator)
}

// BuildUserMessage renders the current turn's user content. It stays a plain
// text message unless media paths are supplied and the provider claims
// vision support, in which case it becomes image parts followed by a single
// text part; non-image or unreadable paths are silently dropped (§4.3).
func BuildUserMessage(content string, media []string, supportsVision bool) providers.Message {
	msg := providers.Message{Role: "user", Content: content}
	if !supportsVision || len(media) == 0 {
		return msg
	}

	for _, path := range media {
		mime, ok := imageExtMime[strings.ToLower(filepath.Ext(path))]
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		msg.Images = append(msg.Images, providers.ImageContent{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		})
	}
	return msg
}

// BuildMessages returns the full message list: system prompt, the given
// (already summarized, if applicable) session history, and the current user
// turn (§4.3: "[system] ++ processed_history ++ [user_current]").
func (b *Builder) BuildMessages(processedHistory []providers.Message, now time.Time, userContent string, media []string, supportsVision bool) []providers.Message {
	systemMsg := providers.Message{Role: "system", Content: b.BuildSystemPrompt(now)}

	out := make([]providers.Message, 0, len(processedHistory)+2)
	out = append(out, systemMsg)
	out = append(out, processedHistory...)
	out = append(out, BuildUserMessage(userContent, media, supportsVision))
	return out
}
