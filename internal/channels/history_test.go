package channels

import (
	"strings"
	"testing"
	"time"
)

func TestPendingHistoryBuildContextPrependsBufferedEntries(t *testing.T) {
	p := NewPendingHistory()
	p.Record("chat:1", HistoryEntry{Sender: "alice", Body: "hi", Timestamp: time.Date(2026, 7, 29, 14, 30, 0, 0, time.UTC)}, 50)
	p.Record("chat:1", HistoryEntry{Sender: "bob", Body: "yo", Timestamp: time.Date(2026, 7, 29, 14, 31, 0, 0, time.UTC)}, 50)

	got := p.BuildContext("chat:1", "current message", 50)
	if !strings.Contains(got, "alice: hi") || !strings.Contains(got, "bob: yo") {
		t.Fatalf("expected buffered entries present, got %q", got)
	}
	if !strings.HasSuffix(got, "current message") {
		t.Fatalf("expected current message appended last, got %q", got)
	}
	if strings.Index(got, "alice") > strings.Index(got, "bob") {
		t.Fatalf("expected entries in insertion order, got %q", got)
	}
}

func TestPendingHistoryBuildContextReturnsCurrentUnmodifiedWhenEmpty(t *testing.T) {
	p := NewPendingHistory()
	got := p.BuildContext("chat:empty", "just this", 50)
	if got != "just this" {
		t.Fatalf("expected no prefix when nothing buffered, got %q", got)
	}
}

func TestPendingHistoryRecordTrimsToLimit(t *testing.T) {
	p := NewPendingHistory()
	for i := 0; i < 10; i++ {
		p.Record("chat:1", HistoryEntry{Sender: "x", Body: "msg"}, 3)
	}
	got := p.BuildContext("chat:1", "now", 3)
	if strings.Count(got, "msg") != 3 {
		t.Fatalf("expected exactly 3 buffered entries retained, got %q", got)
	}
}

func TestPendingHistoryClearRemovesKey(t *testing.T) {
	p := NewPendingHistory()
	p.Record("chat:1", HistoryEntry{Sender: "a", Body: "b"}, 50)
	p.Clear("chat:1")
	got := p.BuildContext("chat:1", "fresh", 50)
	if got != "fresh" {
		t.Fatalf("expected cleared history to leave no trace, got %q", got)
	}
}

func TestPendingHistoryKeysAreIndependent(t *testing.T) {
	p := NewPendingHistory()
	p.Record("chat:1", HistoryEntry{Sender: "a", Body: "only in chat 1"}, 50)
	got := p.BuildContext("chat:2", "current", 50)
	if strings.Contains(got, "only in chat 1") {
		t.Fatalf("expected chat:2 to be unaffected by chat:1's history, got %q", got)
	}
}
