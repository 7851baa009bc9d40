package summary

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// stubProvider returns a fixed chat response, recording the last request it
// was given so tests can assert on the budget clause and source text.
type stubProvider struct {
	reply   string
	err     error
	lastReq providers.ChatRequest
	calls   int
}

func (s *stubProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &providers.ChatResponse{Content: s.reply, FinishReason: "stop"}, nil
}

func (s *stubProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return s.Chat(ctx, req)
}
func (s *stubProvider) DefaultModel() string { return "stub-model" }
func (s *stubProvider) Name() string         { return "stub" }
func (s *stubProvider) SupportsVision() bool { return false }

func repeatMessages(n, charsPerMessage int) []providers.Message {
	content := strings.Repeat("a", charsPerMessage)
	out := make([]providers.Message, 0, n)
	for i := 0; i < n; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		out = append(out, providers.Message{Role: role, Content: content})
	}
	return out
}

func TestBelowT2LeavesHistoryUnchanged(t *testing.T) {
	provider := &stubProvider{reply: "should not be called"}
	s := New(provider, "model", 3000, 4000)

	history := repeatMessages(4, 100) // well under T2
	got := s.MaybeSummarize(context.Background(), "session-1", history)

	if len(got) != len(history) {
		t.Fatalf("expected history unchanged, got %d messages", len(got))
	}
	if provider.calls != 0 {
		t.Fatal("expected no LLM call below T2")
	}
}

func TestSummarizationTriggerScenario(t *testing.T) {
	// 80 messages of 400 ASCII chars each: estimate ~= 80 * 100 = 8000 > T2=4000.
	history := repeatMessages(80, 400)
	provider := &stubProvider{reply: "COMPRESSED"}
	s := New(provider, "model", 3000, 4000)

	got := s.MaybeSummarize(context.Background(), "session-1", history)

	if len(got) == 0 {
		t.Fatal("expected non-empty result")
	}
	if got[0].Role != "assistant" || !strings.HasPrefix(got[0].Content, "[AutoSummary]\n") {
		t.Fatalf("expected first message to be the AutoSummary, got %+v", got[0])
	}
	if !strings.Contains(got[0].Content, "COMPRESSED") {
		t.Fatalf("expected summary text in first message, got %q", got[0].Content)
	}

	tailTokens := 0
	for _, m := range got[1:] {
		if m.Role == "tool" || m.Role == "system" {
			continue
		}
		tailTokens += estimateTokens(m.Content)
	}
	if tailTokens > 3000 {
		t.Fatalf("expected tail tokens <= T1 (3000), got %d", tailTokens)
	}
}

func TestFallbackToTailWhenSummaryEmpty(t *testing.T) {
	history := repeatMessages(80, 400)
	provider := &stubProvider{reply: ""}
	s := New(provider, "model", 3000, 4000)

	got := s.MaybeSummarize(context.Background(), "session-1", history)

	for _, m := range got {
		if strings.HasPrefix(m.Content, "[AutoSummary]") {
			t.Fatal("expected no AutoSummary prefix on fallback truncation")
		}
	}
	if len(got) >= len(history) {
		t.Fatal("expected fallback to shrink the history to the tail")
	}
}

func TestFallbackToTailOnProviderError(t *testing.T) {
	history := repeatMessages(80, 400)
	provider := &stubProvider{err: context.DeadlineExceeded}
	s := New(provider, "model", 3000, 4000)

	got := s.MaybeSummarize(context.Background(), "session-1", history)

	for _, m := range got {
		if strings.HasPrefix(m.Content, "[AutoSummary]") {
			t.Fatal("expected no AutoSummary prefix when the provider call fails")
		}
	}
}

func TestThresholdBumpWhenT2NotGreaterThanT1(t *testing.T) {
	provider := &stubProvider{reply: "x"}
	s := New(provider, "model", 1000, 1000) // T2 <= T1: must bump to T1+200
	if s.t2 != 1200 {
		t.Fatalf("expected T2 bumped to T1+200=1200, got %d", s.t2)
	}
	if s.t1 != 1000 {
		t.Fatalf("expected T1 unchanged at 1000, got %d", s.t1)
	}
}

func TestCleanContentStripsFencedBlocksRegardlessOfLanguage(t *testing.T) {
	longBody := strings.Repeat("x", 41)
	content := "before\n```json\n{\"a\":1}\n```\nmiddle\n```sh\n" + longBody + "\n```\nafter"

	got := cleanContent(content)

	if strings.Contains(got, "json") || strings.Contains(got, longBody) {
		t.Fatalf("expected both the json-language and long non-json fences stripped, got %q", got)
	}
	for _, want := range []string{"before", "middle", "after"} {
		if !strings.Contains(got, want) {
			t.Fatalf("expected surrounding prose %q preserved, got %q", want, got)
		}
	}
}

func TestCleanContentKeepsShortNonJSONFence(t *testing.T) {
	content := "see:\n```go\nfmt.Println(1)\n```\ndone"

	got := cleanContent(content)

	if !strings.Contains(got, "fmt.Println(1)") {
		t.Fatalf("expected a short non-json fenced block under the length threshold to survive, got %q", got)
	}
}

func TestToolMessagesExcludedFromTriggerEstimate(t *testing.T) {
	history := []providers.Message{
		{Role: "tool", Content: strings.Repeat("x", 100000), ToolCallID: "call_1"},
		{Role: "user", Content: "hi"},
	}
	provider := &stubProvider{reply: "should not be called"}
	s := New(provider, "model", 3000, 4000)

	got := s.MaybeSummarize(context.Background(), "session-1", history)
	if len(got) != 2 {
		t.Fatalf("expected history unchanged since tool content doesn't count toward T2, got %d messages", len(got))
	}
	if provider.calls != 0 {
		t.Fatal("expected no LLM call: tool content must not push the estimate over T2")
	}
}

func TestConcurrentTriggerOnSameSessionReturnsUnchanged(t *testing.T) {
	history := repeatMessages(80, 400)
	provider := &stubProvider{reply: "COMPRESSED"}
	s := New(provider, "model", 3000, 4000)

	s.mu.Lock()
	s.inFlight["dup-session"] = true
	s.mu.Unlock()

	got := s.MaybeSummarize(context.Background(), "dup-session", history)
	if len(got) != len(history) {
		t.Fatal("expected a duplicate in-flight trigger to return history unchanged")
	}
	if provider.calls != 0 {
		t.Fatal("expected no LLM call while a summarization is already in flight for the session")
	}
}
