package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	tool := NewReadFileTool(dir, true)

	result := tool.Execute(context.Background(), map[string]interface{}{"path": "../../etc/passwd"})
	if !result.IsError {
		t.Fatalf("expected an error result, got %+v", result)
	}
}

func TestReadFileRejectsOutsideWorkspaceViaSymlink(t *testing.T) {
	workspace := t.TempDir()
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	if err := os.WriteFile(secret, []byte("sensitive"), 0o644); err != nil {
		t.Fatalf("write secret: %v", err)
	}
	link := filepath.Join(workspace, "link")
	if err := os.Symlink(secret, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tool := NewReadFileTool(workspace, true)
	result := tool.Execute(context.Background(), map[string]interface{}{"path": "link"})
	if !result.IsError {
		t.Fatalf("expected a symlink escape to be rejected, got %+v", result)
	}
}

func TestReadWriteFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	write := NewWriteFileTool(dir, true)
	read := NewReadFileTool(dir, true)

	wres := write.Execute(context.Background(), map[string]interface{}{"path": "notes.txt", "content": "hello world"})
	if wres.IsError {
		t.Fatalf("write failed: %+v", wres)
	}

	rres := read.Execute(context.Background(), map[string]interface{}{"path": "notes.txt"})
	if rres.IsError || rres.ForLLM != "hello world" {
		t.Fatalf("expected round-tripped content, got %+v", rres)
	}
}

func TestReadFileRejectsOversizedFile(t *testing.T) {
	dir := t.TempDir()
	big := make([]byte, maxReadFileSize+1)
	if err := os.WriteFile(filepath.Join(dir, "big.bin"), big, 0o644); err != nil {
		t.Fatalf("write big file: %v", err)
	}

	tool := NewReadFileTool(dir, true)
	result := tool.Execute(context.Background(), map[string]interface{}{"path": "big.bin"})
	if !result.IsError {
		t.Fatal("expected oversized file read to be rejected")
	}
}

func TestEditFileRequiresUniqueMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.txt")
	if err := os.WriteFile(path, []byte("foo\nfoo\nbar"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := NewEditFileTool(dir, true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"path": "dup.txt", "old_text": "foo", "new_text": "baz",
	})
	if !result.IsError {
		t.Fatalf("expected edit_file to reject a non-unique match, got %+v", result)
	}
}

func TestEditFileReplacesSingleOccurrence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "single.txt")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := NewEditFileTool(dir, true)
	result := tool.Execute(context.Background(), map[string]interface{}{
		"path": "single.txt", "old_text": "world", "new_text": "there",
	})
	if result.IsError {
		t.Fatalf("expected edit to succeed, got %+v", result)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != "hello there" {
		t.Fatalf("expected 'hello there', got %q", data)
	}
}

func TestListDirSortsEntriesWithKindMarkers(t *testing.T) {
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "zdir"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "afile.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tool := NewListDirTool(dir, true)
	result := tool.Execute(context.Background(), map[string]interface{}{"path": "."})
	if result.IsError {
		t.Fatalf("unexpected error: %+v", result)
	}
	want := "[F] afile.txt\n[D] zdir"
	if result.ForLLM != want {
		t.Fatalf("expected %q, got %q", want, result.ForLLM)
	}
}

func TestResolvePathRejectsDotDotEvenWithoutRestriction(t *testing.T) {
	dir := t.TempDir()
	_, err := resolvePath("../outside", dir, false)
	if err == nil {
		t.Fatal("expected '..' in path to always be rejected")
	}
}
