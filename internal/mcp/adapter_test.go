package mcp

import "testing"

func TestCoerceContentMixedBlocks(t *testing.T) {
	blocks := []contentBlock{
		{Type: "text", Text: "A"},
		{Type: "resource", URI: "u"},
		{Type: "image", MimeType: "image/png", Data: "xxxx"},
	}

	got := CoerceContent(blocks)
	want := "A\n[Resource: u]\n[Image: image/png, 4 chars]"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCoerceContentEmpty(t *testing.T) {
	if got := CoerceContent(nil); got != "" {
		t.Fatalf("expected empty string for no blocks, got %q", got)
	}
}

func TestCoerceContentUnknownType(t *testing.T) {
	blocks := []contentBlock{{Type: "audio"}}
	if got := CoerceContent(blocks); got != "[audio]" {
		t.Fatalf("expected fallback bracket form, got %q", got)
	}
}
