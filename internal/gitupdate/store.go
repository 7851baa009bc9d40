package gitupdate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const storeVersion = 1

type fileFormat struct {
	Version int     `json:"version"`
	Repos   []*Repo `json:"repos"`
}

// store owns the in-memory repo list and its on-disk mirror, persisting
// atomically the same way internal/cron's store does (§5).
type store struct {
	mu    sync.Mutex
	path  string
	repos map[string]*Repo
}

func newStore(path string) (*store, error) {
	s := &store{path: path, repos: make(map[string]*Repo)}
	if path == "" {
		return s, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var doc fileFormat
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("gitupdate store: parse %s: %w", path, err)
	}
	for _, r := range doc.Repos {
		s.repos[r.ID] = r
	}
	return s, nil
}

func (s *store) list() []*Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Repo, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	return out
}

func (s *store) get(id string) *Repo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repos[id]
}

func (s *store) upsert(r *Repo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.repos[r.ID] = r
}

func (s *store) save() error {
	if s.path == "" {
		return nil
	}
	s.mu.Lock()
	doc := fileFormat{Version: storeVersion, Repos: make([]*Repo, 0, len(s.repos))}
	for _, r := range s.repos {
		doc.Repos = append(doc.Repos, r)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "gitupdate-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}
