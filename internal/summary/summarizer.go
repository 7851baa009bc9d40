// Package summary implements the dual-threshold conversation compressor
// (§4.4): once a session's estimated token count exceeds T2, the older
// prefix is replaced with a single generated summary message while a recent
// tail is preserved verbatim.
package summary

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

const (
	summarizerSystemPrompt = "You are a dialog summarizer. Retain facts, entities, constraints, and open items from the conversation below."
	autoSummaryPrefix      = "[AutoSummary]\n"
	minSummaryBudget       = 50
)

// fencedBlockPattern matches any fenced code block, language tag included,
// so cleanContent can apply the two distinct stripping rules of §4.4 step
// 3a/3b: language json/empty is stripped unconditionally, any other
// language is stripped only once its body reaches the length threshold
// (otherwise a short inline snippet in conversational prose survives).
var fencedBlockPattern = regexp.MustCompile("(?s)```([a-zA-Z0-9_+-]*)\\n(.*?)```")

const fencedBlockLengthThreshold = 40

// toolTracePatterns match lines that are clearly tool-call bookkeeping
// rather than conversational content (§4.4 step 3c).
var toolTracePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tool_calls`),
	regexp.MustCompile(`(?i)tool_call_id`),
	regexp.MustCompile(`(?i)\bfunction\b`),
	regexp.MustCompile(`(?i)type\s*:\s*function`),
	regexp.MustCompile(`(?i)\bid\s*:\s*call_\w+`),
}

// jsonBlobPattern is the heuristic large-JSON-blob matcher (§4.4 step 3d):
// a brace/bracket-delimited run long enough and dense enough in quotes and
// colons to look like serialized data rather than prose.
var jsonBlobPattern = regexp.MustCompile(`(?s)[{\[].{60,}[}\]]`)

// Summarizer holds the thresholds and LLM hook needed to compress a
// session's history.
type Summarizer struct {
	provider providers.Provider
	model    string
	t1       int // retain threshold: size of the tail budget
	t2       int // trigger threshold: summarize once exceeded

	mu       sync.Mutex
	inFlight map[string]bool
}

// New returns a Summarizer. If t2 <= t1, t2 is bumped to t1+200 so the
// trigger threshold always exceeds the retain threshold (§4.4).
func New(provider providers.Provider, model string, t1, t2 int) *Summarizer {
	if t2 <= t1 {
		t2 = t1 + 200
	}
	return &Summarizer{provider: provider, model: model, t1: t1, t2: t2, inFlight: make(map[string]bool)}
}

// estimateTokens is the cheap heuristic from §4.4: ceil(ascii/4) +
// non_ascii, minimum 1 for a non-empty string.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	ascii, nonASCII := 0, 0
	for _, r := range s {
		if r < 128 {
			ascii++
		} else {
			nonASCII++
		}
	}
	count := (ascii+3)/4 + nonASCII
	if count < 1 {
		count = 1
	}
	return count
}

func messageTokens(m providers.Message) int {
	return estimateTokens(m.Content)
}

// MaybeSummarize compresses history in place against the session key if it
// exceeds T2, returning the new (possibly unchanged) history. Concurrent
// calls for the same session key are deduplicated: a duplicate trigger
// returns the original history unchanged (§4.4 "Concurrency guard").
func (s *Summarizer) MaybeSummarize(ctx context.Context, sessionKey string, history []providers.Message) []providers.Message {
	total := 0
	for _, m := range history {
		if m.Role == "tool" {
			continue
		}
		total += messageTokens(m)
	}
	if total <= s.t2 {
		return history
	}

	s.mu.Lock()
	if s.inFlight[sessionKey] {
		s.mu.Unlock()
		return history
	}
	s.inFlight[sessionKey] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inFlight, sessionKey)
		s.mu.Unlock()
	}()

	return s.summarize(ctx, history)
}

// summarize implements the §4.4 algorithm: walk newest-to-oldest building
// the preserved tail until T1 would be exceeded, compress everything else
// (excluding tool messages), call the LLM for a summary, and fall back to a
// tail-only truncation if the summary call fails or returns empty.
func (s *Summarizer) summarize(ctx context.Context, history []providers.Message) []providers.Message {
	tailStart, tailTokens := s.walkTail(history)
	tail := history[tailStart:]

	compressionSet := make([]providers.Message, 0, tailStart)
	for i := 0; i < tailStart; i++ {
		if history[i].Role == "tool" {
			continue
		}
		compressionSet = append(compressionSet, history[i])
	}
	if len(compressionSet) == 0 {
		return truncateToTail(tail)
	}

	source := buildSummarySource(compressionSet)
	budget := s.t2 - tailTokens
	if budget < minSummaryBudget {
		budget = minSummaryBudget
	}

	summaryText, err := s.callLLM(ctx, source, budget)
	if err != nil || strings.TrimSpace(summaryText) == "" {
		return truncateToTail(tail)
	}

	out := make([]providers.Message, 0, len(tail)+1)
	out = append(out, providers.Message{Role: "assistant", Content: autoSummaryPrefix + strings.TrimSpace(summaryText)})
	out = append(out, tail...)
	return out
}

// walkTail returns the start index of the preserved tail (everything from
// that index onward is kept verbatim) and the tail's token total, counting
// newest-to-oldest and stopping before T1 would be exceeded. Tool and system
// messages are excluded from tail-retention counting (§4.4 step 1).
func (s *Summarizer) walkTail(history []providers.Message) (int, int) {
	tokens := 0
	i := len(history)
	for i > 0 {
		m := history[i-1]
		if m.Role == "tool" || m.Role == "system" {
			i--
			continue
		}
		next := tokens + messageTokens(m)
		if next > s.t1 {
			break
		}
		tokens = next
		i--
	}
	return i, tokens
}

// buildSummarySource renders the compression set as one cleaned line per
// message, "role: content" (§4.4 step 3).
func buildSummarySource(messages []providers.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		content := cleanContent(m.Content)
		if content == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, content))
	}
	return strings.Join(lines, "\n")
}

// cleanContent strips fenced code blocks, tool-trace lines, and large JSON
// blobs from a message before it enters the summarization source (§4.4
// step 3).
func cleanContent(content string) string {
	content = fencedBlockPattern.ReplaceAllStringFunc(content, func(block string) string {
		m := fencedBlockPattern.FindStringSubmatch(block)
		lang, body := m[1], m[2]
		if lang == "" || lang == "json" || len(body) >= fencedBlockLengthThreshold {
			return ""
		}
		return block
	})
	content = jsonBlobPattern.ReplaceAllString(content, "")

	var kept []string
	for _, line := range strings.Split(content, "\n") {
		traced := false
		for _, p := range toolTracePatterns {
			if p.MatchString(line) {
				traced = true
				break
			}
		}
		if !traced {
			kept = append(kept, line)
		}
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// callLLM invokes the provider with the summarization system prompt and a
// budget clause.
func (s *Summarizer) callLLM(ctx context.Context, source string, budget int) (string, error) {
	userPrompt := fmt.Sprintf("Summarize the following conversation in at most %d tokens.\n\n%s", budget, source)
	resp, err := s.provider.Chat(ctx, providers.ChatRequest{
		Model: s.model,
		Messages: []providers.Message{
			{Role: "system", Content: summarizerSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", err
	}
	if resp.FinishReason == "error" {
		return "", fmt.Errorf("summary call failed: %s", resp.Content)
	}
	return resp.Content, nil
}

// truncateToTail is the fallback path: drop everything outside the
// preserved tail, no summary prefix (§4.4 step 5).
func truncateToTail(tail []providers.Message) []providers.Message {
	out := make([]providers.Message, len(tail))
	copy(out, tail)
	return out
}
