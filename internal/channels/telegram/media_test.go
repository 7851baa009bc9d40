package telegram

import "testing"

func TestBuildMediaTags(t *testing.T) {
	tests := []struct {
		name  string
		items []MediaInfo
		want  string
	}{
		{"image", []MediaInfo{{Type: "image"}}, "<media:image>"},
		{"video", []MediaInfo{{Type: "video"}}, "<media:video>"},
		{"animation", []MediaInfo{{Type: "animation"}}, "<media:video>"},
		{"audio", []MediaInfo{{Type: "audio"}}, "<media:audio>"},
		{"voice", []MediaInfo{{Type: "voice"}}, "<media:voice>"},
		{"document", []MediaInfo{{Type: "document"}}, "<media:document>"},
		{"empty list", []MediaInfo{}, ""},
		{"unknown type ignored", []MediaInfo{{Type: "sticker"}}, ""},
		{
			"multiple items",
			[]MediaInfo{{Type: "image"}, {Type: "voice"}, {Type: "document"}},
			"<media:image>\n<media:voice>\n<media:document>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildMediaTags(tt.items); got != tt.want {
				t.Errorf("buildMediaTags(%v) = %q, want %q", tt.items, got, tt.want)
			}
		})
	}
}

func TestExtractDocumentContent_BinaryPlaceholder(t *testing.T) {
	got, err := extractDocumentContent("/tmp/does-not-matter.bin", "photo.png")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("expected a placeholder message for an unsupported extension")
	}
}

func TestExtractDocumentContent_DownloadFailed(t *testing.T) {
	got, err := extractDocumentContent("", "notes.txt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == "" {
		t.Fatal("expected a download-failed placeholder")
	}
}
