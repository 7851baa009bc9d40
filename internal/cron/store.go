package cron

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// fileFormat is the on-disk shape: a top-level {version, jobs} document (§4.8).
type fileFormat struct {
	Version int    `json:"version"`
	Jobs    []*Job `json:"jobs"`
}

const storeVersion = 1

// Store owns the in-memory job list and its on-disk mirror, persisting
// atomically (temp file + fsync + rename) to avoid tearing (§5 "Shared
// resources" — cron/git state files are written by their own services only).
type Store struct {
	mu   sync.Mutex
	path string
	jobs map[string]*Job
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path, jobs: make(map[string]*Job)}
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
		return nil, fmt.Errorf("cron store: parse %s: %w", path, err)
	}
	for _, j := range doc.Jobs {
		s.jobs[j.ID] = j
	}
	return s, nil
}

// newID returns a short opaque id (§4.8: "assigns a short opaque id").
func newID() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b[:])
}

func (s *Store) add(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = newID()
	s.jobs[j.ID] = j
}

func (s *Store) remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return false
	}
	delete(s.jobs, id)
	return true
}

func (s *Store) list() []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	return out
}

func (s *Store) get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// dueJobs returns every enabled job whose next_run_ms has passed, so the
// scheduler can process them in one tick.
func (s *Store) dueJobs(nowMs int64) []*Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []*Job
	for _, j := range s.jobs {
		if j.Enabled && j.NextRunMs > 0 && j.NextRunMs <= nowMs {
			due = append(due, j)
		}
	}
	return due
}

// soonestWake returns the earliest next_run_ms across enabled jobs, or 0 if
// none are scheduled.
func (s *Store) soonestWake() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var soonest int64
	for _, j := range s.jobs {
		if !j.Enabled || j.NextRunMs <= 0 {
			continue
		}
		if soonest == 0 || j.NextRunMs < soonest {
			soonest = j.NextRunMs
		}
	}
	return soonest
}

// save persists the job list atomically.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}

	s.mu.Lock()
	doc := fileFormat{Version: storeVersion, Jobs: make([]*Job, 0, len(s.jobs))}
	for _, j := range s.jobs {
		doc.Jobs = append(doc.Jobs, j)
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmpFile, err := os.CreateTemp(dir, "cron-*.tmp")
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
