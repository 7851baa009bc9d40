package channels

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultGroupHistoryLimit bounds how many unaddressed group messages are
// buffered as context for the next addressed turn.
const DefaultGroupHistoryLimit = 50

// HistoryEntry is one buffered group message.
type HistoryEntry struct {
	Sender    string
	Body      string
	Timestamp time.Time
	MessageID string
}

// PendingHistory buffers group messages that weren't addressed to the bot
// (no mention, no reply-to-bot) so the next addressed turn still has the
// surrounding conversation for context.
type PendingHistory struct {
	mu      sync.Mutex
	entries map[string][]HistoryEntry
}

func NewPendingHistory() *PendingHistory {
	return &PendingHistory{entries: make(map[string][]HistoryEntry)}
}

// Record appends an entry for key, trimming to the oldest `limit` dropped.
func (p *PendingHistory) Record(key string, entry HistoryEntry, limit int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := append(p.entries[key], entry)
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	p.entries[key] = entries
}

// BuildContext prefixes buffered history to the current addressed message.
func (p *PendingHistory) BuildContext(key, current string, limit int) string {
	p.mu.Lock()
	entries := p.entries[key]
	p.mu.Unlock()

	if len(entries) == 0 {
		return current
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}

	var sb strings.Builder
	sb.WriteString("Recent unaddressed messages in this chat:\n")
	for _, e := range entries {
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", e.Timestamp.Format("15:04"), e.Sender, e.Body))
	}
	sb.WriteString("\n")
	sb.WriteString(current)
	return sb.String()
}

// Clear drops buffered history for key.
func (p *PendingHistory) Clear(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}
