package gitupdate

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

func runGitCmd(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(),
		"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com",
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return string(out)
}

// setupRemoteAndClone creates a bare "origin" repo and a working clone with
// origin configured, seeded with one commit on "main".
func setupRemoteAndClone(t *testing.T) (remote, clone string) {
	t.Helper()
	base := t.TempDir()
	remote = filepath.Join(base, "origin.git")
	clone = filepath.Join(base, "clone")

	if err := os.MkdirAll(remote, 0o755); err != nil {
		t.Fatalf("mkdir remote: %v", err)
	}
	runGitCmd(t, remote, "init", "--bare", "-b", "main")

	if err := os.MkdirAll(clone, 0o755); err != nil {
		t.Fatalf("mkdir clone: %v", err)
	}
	runGitCmd(t, clone, "init", "-b", "main")
	runGitCmd(t, clone, "remote", "add", "origin", remote)
	if err := os.WriteFile(filepath.Join(clone, "file.txt"), []byte("line one\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	runGitCmd(t, clone, "add", "file.txt")
	runGitCmd(t, clone, "commit", "-m", "initial")
	runGitCmd(t, clone, "push", "-u", "origin", "main")
	return remote, clone
}

func TestUpdateRepoNoChange(t *testing.T) {
	_, clone := setupRemoteAndClone(t)
	svc, err := NewService("", nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	repo := &Repo{ID: "r1", Path: clone, Branch: "main", Enabled: true}

	result := svc.UpdateRepo(context.Background(), repo)
	if result.Status != "no_change" {
		t.Fatalf("expected no_change, got %+v", result)
	}
}

func TestUpdateRepoCleanFastForward(t *testing.T) {
	remote, clone := setupRemoteAndClone(t)

	// Push a second commit directly into "origin" via a second clone.
	other := filepath.Join(t.TempDir(), "other")
	runGitCmd(t, filepath.Dir(clone), "clone", remote, other)
	runGitCmd(t, other, "config", "user.email", "test@example.com")
	runGitCmd(t, other, "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(other, "file.txt"), []byte("line one\nline two\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGitCmd(t, other, "add", "file.txt")
	runGitCmd(t, other, "commit", "-m", "second")
	runGitCmd(t, other, "push", "origin", "main")

	svc, err := NewService("", nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	repo := &Repo{ID: "r1", Path: clone, Branch: "main", Enabled: true}

	result := svc.UpdateRepo(context.Background(), repo)
	if result.Status != "updated" {
		t.Fatalf("expected updated, got %+v", result)
	}
	if result.NewCommit == result.OldCommit {
		t.Fatal("expected NewCommit to differ from OldCommit")
	}

	// Re-running immediately should now report no_change (round-trip idempotence, §8).
	again := svc.UpdateRepo(context.Background(), repo)
	if again.Status != "no_change" {
		t.Fatalf("expected immediate re-run to be no_change, got %+v", again)
	}
}

func TestUpdateRepoConflictPreservesLocalChangeAndHEAD(t *testing.T) {
	remote, clone := setupRemoteAndClone(t)

	other := filepath.Join(t.TempDir(), "other")
	runGitCmd(t, filepath.Dir(clone), "clone", remote, other)
	runGitCmd(t, other, "config", "user.email", "test@example.com")
	runGitCmd(t, other, "config", "user.name", "test")
	if err := os.WriteFile(filepath.Join(other, "file.txt"), []byte("upstream change\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runGitCmd(t, other, "add", "file.txt")
	runGitCmd(t, other, "commit", "-m", "upstream edits line one")
	runGitCmd(t, other, "push", "origin", "main")

	// Make a conflicting uncommitted local change to the same line.
	if err := os.WriteFile(filepath.Join(clone, "file.txt"), []byte("local change\n"), 0o644); err != nil {
		t.Fatalf("write local: %v", err)
	}

	var notified bool
	svc, err := NewService("", func(r *Repo, result Result) { notified = true })
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	repo := &Repo{
		ID: "r1", Path: clone, Branch: "main", Enabled: true,
		OnConflict: []string{"echo conflict-hook-ran >> " + filepath.Join(clone, "conflict.log")},
	}

	oldHead := strings.TrimSpace(runGitCmd(t, clone, "rev-parse", "HEAD"))
	result := svc.UpdateRepo(context.Background(), repo)

	if result.Status != "conflict" {
		t.Fatalf("expected conflict, got %+v", result)
	}
	newHead := strings.TrimSpace(runGitCmd(t, clone, "rev-parse", "HEAD"))
	if newHead != oldHead {
		t.Fatalf("expected HEAD unchanged on conflict, old=%s new=%s", oldHead, newHead)
	}

	data, err := os.ReadFile(filepath.Join(clone, "file.txt"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(data) != "local change\n" {
		t.Fatalf("expected local change preserved after stash pop, got %q", data)
	}

	if _, err := os.Stat(filepath.Join(clone, "conflict.log")); err != nil {
		t.Fatalf("expected on_conflict command to have run and written conflict.log: %v", err)
	}
	if notified {
		t.Fatal("expected no change notification on a conflict result")
	}
}
