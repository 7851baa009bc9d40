package sessions

import (
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

func TestAddMessageThenGetHistory(t *testing.T) {
	m := NewManager("")
	key := DefaultKey("cli", "alice")

	m.AddMessage(key, providers.Message{Role: "user", Content: "Hello"})
	m.AddMessage(key, providers.Message{Role: "assistant", Content: "Hi there!"})

	got := m.GetHistory(key)
	if len(got) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got))
	}
	if got[0].Role != "user" || got[1].Role != "assistant" {
		t.Fatalf("unexpected history order: %+v", got)
	}
}

func TestAddAssistantThenToolResultPreservesPrefix(t *testing.T) {
	m := NewManager("")
	key := DefaultKey("cli", "bob")

	m.AddMessage(key, providers.Message{Role: "user", Content: "List the workspace"})
	m.AddMessage(key, providers.Message{Role: "assistant", ToolCalls: []providers.ToolCall{{ID: "call_1"}}})
	m.AddMessage(key, providers.Message{Role: "tool", ToolCallID: "call_1", Content: "memory\nAGENTS.md"})

	history := m.GetHistory(key)
	if len(history) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(history))
	}
	if history[len(history)-1].Role != "tool" || history[len(history)-1].ToolCallID != "call_1" {
		t.Fatalf("expected last message to be the tool result, got %+v", history[len(history)-1])
	}
	if history[0].Content != "List the workspace" {
		t.Fatalf("prefix was mutated: %+v", history[0])
	}
}

func TestSaveThenReloadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := DefaultKey("telegram", "123")

	m.AddMessage(key, providers.Message{Role: "user", Content: "Hello"})
	m.AddMessage(key, providers.Message{Role: "assistant", Content: "Hi there!"})
	m.SetSummary(key, "[AutoSummary]\nfoo")

	if err := m.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewManager(dir)
	history := reloaded.GetHistory(key)
	if len(history) != 2 {
		t.Fatalf("expected 2 messages after reload, got %d", len(history))
	}
	if reloaded.GetSummary(key) != "[AutoSummary]\nfoo" {
		t.Fatalf("summary did not round-trip: %q", reloaded.GetSummary(key))
	}
}

func TestSaveUsesAtomicRename(t *testing.T) {
	dir := t.TempDir()
	m := NewManager(dir)
	key := DefaultKey("cli", "atomic")
	m.AddMessage(key, providers.Message{Role: "user", Content: "hi"})

	if err := m.Save(key); err != nil {
		t.Fatalf("Save: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "session-*.tmp"))
	if err != nil {
		t.Fatalf("Glob: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no leftover temp files, found %v", matches)
	}
}
