// Package agent implements the tool-calling agent loop: the main consumer
// that turns an inbound message into zero or more LLM/tool round trips and a
// final reply (§4.2).
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
	agentcontext "github.com/nextlevelbuilder/goclaw/internal/context"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sessions"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
	"github.com/nextlevelbuilder/goclaw/internal/summary"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
)

const (
	defaultMaxIterations = 20
	inboundPollTimeout   = 1 * time.Second
	noResponseMessage    = "I've completed processing but have no response to give."
	apologyMessage       = "Sorry, something went wrong processing that. Please try again."
)

// Loop is the main consumer: it reads inbound messages off the bus, runs the
// tool-calling loop against a Provider, and publishes outbound replies
// (§4.2).
type Loop struct {
	Router     bus.MessageRouter
	Sessions   *sessions.Manager
	Registry   *tools.Registry
	Builder    *agentcontext.Builder
	Summarizer *summary.Summarizer
	Provider   providers.Provider
	Skills     *skills.Loader

	Model         string
	MaxIterations int

	Logger *slog.Logger

	// lastSkillNames is the skill identifier snapshot from the previous
	// ReloadContext call (or the initial load), used to compute the diff.
	lastSkillNames []string
	skillsLoaded   bool
}

func (l *Loop) maxIterations() int {
	if l.MaxIterations > 0 {
		return l.MaxIterations
	}
	return defaultMaxIterations
}

func (l *Loop) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Run blocks, consuming inbound messages until ctx is canceled. Each message
// polls with a short timeout so shutdown is checked between reads (§4.2).
func (l *Loop) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		pollCtx, cancel := context.WithTimeout(ctx, inboundPollTimeout)
		msg, ok := l.Router.ConsumeInbound(pollCtx)
		cancel()
		if !ok {
			continue
		}

		reply, err := l.safeProcess(ctx, msg)
		if err != nil {
			l.logger().Error("agent: process failed", "error", err, "channel", msg.Channel, "chat_id", msg.ChatID)
			l.Router.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: apologyMessage})
			continue
		}
		if reply != "" {
			l.Router.PublishOutbound(bus.OutboundMessage{Channel: msg.Channel, ChatID: msg.ChatID, Content: reply})
		}
	}
}

// safeProcess converts a panic in process into an error so Run's apology
// path always fires rather than crashing the process (§4.2, §5 "Fatal").
func (l *Loop) safeProcess(ctx context.Context, msg bus.InboundMessage) (reply string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return l.process(ctx, msg)
}

// process handles one inbound message: system-channel messages are rerouted
// to their origin session, everything else gets-or-creates the session
// keyed by msg.SessionKey and runs the tool loop (§4.2).
func (l *Loop) process(ctx context.Context, msg bus.InboundMessage) (string, error) {
	sessionKey := msg.SessionKey
	channel, chatID := msg.Channel, msg.ChatID

	if msg.Channel == "system" {
		parts := strings.SplitN(msg.ChatID, ":", 2)
		if len(parts) == 2 {
			channel, chatID = parts[0], parts[1]
			sessionKey = channel + ":" + chatID
		}
	}

	if msg.Metadata["command"] == "reset" {
		l.Sessions.Reset(sessionKey)
		if err := l.Sessions.Save(sessionKey); err != nil {
			l.logger().Warn("agent: failed to save reset session", "session", sessionKey, "error", err)
		}
		return "", nil
	}

	ctx = tools.WithToolChannel(ctx, channel)
	ctx = tools.WithToolChatID(ctx, chatID)
	ctx = tools.WithToolPeerKind(ctx, msg.PeerKind)

	return l.runTurn(ctx, sessionKey, msg.Content, msg.Media)
}

// ProcessDirect is the synchronous entry point used by cron and the CLI,
// bypassing the bus entirely (§4.2).
func (l *Loop) ProcessDirect(ctx context.Context, content, sessionKey, channel, chatID string) (string, error) {
	ctx = tools.WithToolChannel(ctx, channel)
	ctx = tools.WithToolChatID(ctx, chatID)
	return l.runTurn(ctx, sessionKey, content, nil)
}

// runTurn builds the LLM request via the Context Builder, then executes the
// tool loop to convergence (§4.2).
func (l *Loop) runTurn(ctx context.Context, sessionKey, content string, media []string) (string, error) {
	l.Sessions.GetOrCreate(sessionKey)
	history := l.Sessions.GetHistory(sessionKey)

	if l.Summarizer != nil {
		compressed := l.Summarizer.MaybeSummarize(ctx, sessionKey, history)
		if len(compressed) != len(history) {
			l.Sessions.ReplaceHistory(sessionKey, compressed)
			l.Sessions.IncrementCompaction(sessionKey)
			history = compressed
		}
	}

	supportsVision := l.Provider != nil && l.Provider.SupportsVision()
	messages := l.Builder.BuildMessages(history, time.Now(), content, media, supportsVision)

	final, err := l.toolLoop(ctx, messages)
	if err != nil {
		return "", err
	}

	l.Sessions.AddMessage(sessionKey, providers.Message{Role: "user", Content: content})
	l.Sessions.AddMessage(sessionKey, providers.Message{Role: "assistant", Content: final})
	if err := l.Sessions.Save(sessionKey); err != nil {
		l.logger().Warn("agent: failed to persist session", "session", sessionKey, "error", err)
	}
	return final, nil
}

// toolLoop runs the call-LLM / dispatch-tools cycle to convergence, capped
// at MaxIterations (§4.2):
//  1. call the LLM with (messages, tools, model)
//  2. if the response carries tool calls, append the assistant message and
//     one tool-result message per call, then loop
//  3. otherwise finalize with the assistant text
func (l *Loop) toolLoop(ctx context.Context, messages []providers.Message) (string, error) {
	toolDefs := l.Registry.Definitions()
	defs := make([]providers.ToolDefinition, 0, len(toolDefs))
	for _, d := range toolDefs {
		fn, _ := d["function"].(map[string]interface{})
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        fmt.Sprint(fn["name"]),
				Description: fmt.Sprint(fn["description"]),
				Parameters:  fn["parameters"].(map[string]interface{}),
			},
		})
	}

	for i := 0; i < l.maxIterations(); i++ {
		resp, err := l.Provider.Chat(ctx, providers.ChatRequest{
			Messages: messages,
			Tools:    defs,
			Model:    l.Model,
		})
		if err != nil {
			return "", fmt.Errorf("llm call: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			return resp.Content, nil
		}

		messages = append(messages, providers.Message{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := l.Registry.Execute(ctx, call.Name, call.Arguments)
			messages = append(messages, providers.Message{
				Role:       "tool",
				Content:    result.ForLLM,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	return noResponseMessage, nil
}

// ReloadDiff describes which skill identifiers changed after a context
// reload (§4.2).
type ReloadDiff struct {
	Added    []string
	Removed  []string
	Modified []string
}

// ReloadContext re-scans the skills catalogue off disk and reports which
// skill identifiers were added or removed relative to the snapshot taken on
// the previous call (the bootstrap watcher invokes this on every file-system
// change, per §4.2). Modified is always empty: skill content changes aren't
// tracked, only presence.
func (l *Loop) ReloadContext() ReloadDiff {
	var after []string
	if l.Skills != nil {
		for _, s := range l.Skills.List() {
			after = append(after, s.Name)
		}
	}

	before := l.lastSkillNames
	if !l.skillsLoaded {
		// First call: nothing to diff against yet, so the initial catalogue
		// establishes the baseline rather than reporting everything "added".
		before = after
	}

	diff := diffSkillNames(before, after)
	l.lastSkillNames = after
	l.skillsLoaded = true
	return diff
}

func diffSkillNames(before, after []string) ReloadDiff {
	beforeSet := make(map[string]bool, len(before))
	for _, n := range before {
		beforeSet[n] = true
	}
	afterSet := make(map[string]bool, len(after))
	for _, n := range after {
		afterSet[n] = true
	}

	var diff ReloadDiff
	for _, n := range after {
		if !beforeSet[n] {
			diff.Added = append(diff.Added, n)
		}
	}
	for _, n := range before {
		if !afterSet[n] {
			diff.Removed = append(diff.Removed, n)
		}
	}
	return diff
}
