package channels

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bus"
)

func TestIsInternalChannel(t *testing.T) {
	if !IsInternalChannel("cli") || !IsInternalChannel("system") {
		t.Fatal("expected cli and system to be internal channels")
	}
	if IsInternalChannel("telegram") {
		t.Fatal("expected telegram not to be internal")
	}
}

func TestIsAllowedEmptyAllowlistPermitsEveryone(t *testing.T) {
	c := NewBaseChannel("telegram", nil, nil)
	if !c.IsAllowed("anyone") {
		t.Fatal("expected empty allowlist to allow everyone")
	}
	if c.HasAllowList() {
		t.Fatal("expected HasAllowList false for an empty list")
	}
}

func TestIsAllowedMatchesPlainID(t *testing.T) {
	c := NewBaseChannel("telegram", nil, []string{"12345"})
	if !c.IsAllowed("12345") {
		t.Fatal("expected exact ID match to be allowed")
	}
	if c.IsAllowed("99999") {
		t.Fatal("expected a non-matching ID to be denied")
	}
}

func TestIsAllowedMatchesAtPrefixedUsername(t *testing.T) {
	c := NewBaseChannel("telegram", nil, []string{"@alice"})
	if !c.IsAllowed("alice") {
		t.Fatal("expected @-prefixed allowlist entry to match the bare username")
	}
}

func TestIsAllowedMatchesEitherHalfOfCompoundSenderID(t *testing.T) {
	c := NewBaseChannel("discord", nil, []string{"alice"})
	if !c.IsAllowed("999|alice") {
		t.Fatal("expected the username half of a compound sender ID to match")
	}
	c2 := NewBaseChannel("discord", nil, []string{"999"})
	if !c2.IsAllowed("999|alice") {
		t.Fatal("expected the ID half of a compound sender ID to match")
	}
}

func TestCheckPolicyDisabledDeniesEveryone(t *testing.T) {
	c := NewBaseChannel("telegram", nil, nil)
	if c.CheckPolicy("direct", string(DMPolicyDisabled), string(GroupPolicyOpen), "anyone") {
		t.Fatal("expected disabled DM policy to deny")
	}
}

func TestCheckPolicyOpenDefaultsWhenEmpty(t *testing.T) {
	c := NewBaseChannel("telegram", nil, nil)
	if !c.CheckPolicy("direct", "", "", "anyone") {
		t.Fatal("expected empty policy to default to open")
	}
}

func TestCheckPolicyAllowlistDelegatesToIsAllowed(t *testing.T) {
	c := NewBaseChannel("telegram", nil, []string{"alice"})
	if c.CheckPolicy("direct", string(DMPolicyAllowlist), string(GroupPolicyOpen), "bob") {
		t.Fatal("expected a sender outside the allowlist to be denied under allowlist policy")
	}
	if !c.CheckPolicy("direct", string(DMPolicyAllowlist), string(GroupPolicyOpen), "alice") {
		t.Fatal("expected an allowlisted sender to be permitted")
	}
}

func TestCheckPolicyUsesGroupPolicyForGroupPeerKind(t *testing.T) {
	c := NewBaseChannel("telegram", nil, nil)
	if c.CheckPolicy("group", string(DMPolicyOpen), string(GroupPolicyDisabled), "anyone") {
		t.Fatal("expected group peer kind to use the group policy, not the DM policy")
	}
}

func TestHandleMessagePublishesOnlyWhenAllowed(t *testing.T) {
	b := bus.New()
	c := NewBaseChannel("telegram", b, []string{"alice"})

	c.HandleMessage("bob", "chat:1", "hi", nil, nil, "direct")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Fatal("expected a disallowed sender's message not to be published")
	}

	c.HandleMessage("alice", "chat:1", "hi", nil, nil, "direct")
	msg, ok := b.ConsumeInbound(context.Background())
	if !ok || msg.Content != "hi" || msg.SenderID != "alice" {
		t.Fatalf("expected the allowed sender's message to be published, got %+v ok=%v", msg, ok)
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("expected untouched short string, got %q", got)
	}
	if got := Truncate("this is a long string", 7); got != "this is..." {
		t.Fatalf("expected truncation with ellipsis, got %q", got)
	}
}
