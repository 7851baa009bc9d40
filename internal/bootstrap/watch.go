package bootstrap

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces a burst of edits (e.g. an editor's save-then-
// rewrite) into a single reload.
const debounceWindow = 300 * time.Millisecond

// Watch watches the workspace root's bootstrap files and its skills/
// subtree for changes, calling onChange (debounced) whenever any of them
// are written, created, or removed. It blocks until ctx is canceled.
func Watch(ctx context.Context, workspaceDir string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(workspaceDir); err != nil {
		return err
	}
	skillsDir := filepath.Join(workspaceDir, "skills")
	if err := watcher.Add(skillsDir); err != nil {
		slog.Warn("bootstrap: not watching skills dir", "path", skillsDir, "error", err)
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceWindow, onChange)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("bootstrap: watch error", "error", err)
		}
	}
}
