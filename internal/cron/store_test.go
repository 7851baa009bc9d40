package cron

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	j := &Job{Name: "ping", Kind: KindEvery, Message: "ping", EverySeconds: 60, Enabled: true, NextRunMs: 1000}
	store.add(j)
	if err := store.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.list()
	if len(got) != 1 {
		t.Fatalf("expected 1 job, got %d", len(got))
	}
	if got[0].ID != j.ID || got[0].Name != "ping" || got[0].EverySeconds != 60 {
		t.Fatalf("round-trip mismatch: %+v vs %+v", got[0], j)
	}
}

func TestAddRemoveReloadMatchesFinalSet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	a := &Job{Name: "a", Kind: KindEvery, EverySeconds: 10, Enabled: true}
	b := &Job{Name: "b", Kind: KindEvery, EverySeconds: 20, Enabled: true}
	c := &Job{Name: "c", Kind: KindEvery, EverySeconds: 30, Enabled: true}
	store.add(a)
	store.add(b)
	store.add(c)
	if !store.remove(b.ID) {
		t.Fatal("expected remove(b) to succeed")
	}
	if err := store.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	got := reloaded.list()
	if len(got) != 2 {
		t.Fatalf("expected 2 jobs after removal, got %d", len(got))
	}
	names := map[string]bool{}
	for _, j := range got {
		names[j.Name] = true
	}
	if !names["a"] || !names["c"] || names["b"] {
		t.Fatalf("unexpected surviving job set: %+v", names)
	}
}

func TestRemoveUnknownIDReturnsFalse(t *testing.T) {
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if store.remove("does-not-exist") {
		t.Fatal("expected remove of unknown id to fail")
	}
}

func TestSaveWritesNestedScheduleLayoutWithTimestamps(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jobs.json")

	store, err := NewStore(path)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	j := &Job{
		Name: "ping", Kind: KindCron, Message: "ping", CronExpr: "0 9 * * *", CronTZ: "Asia/Ho_Chi_Minh",
		Enabled: true, Deliver: true, Channel: "cli", To: "local", NextRunMs: 1000, LastRunMs: 500,
		LastStatus: "ok", CreatedMs: 111, UpdatedMs: 222,
	}
	store.add(j)
	if err := store.save(); err != nil {
		t.Fatalf("save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved file: %v", err)
	}

	var doc struct {
		Jobs []struct {
			ID       string `json:"id"`
			Schedule struct {
				Kind string `json:"kind"`
				Expr string `json:"expr"`
				TZ   string `json:"tz"`
			} `json:"schedule"`
			Payload struct {
				Kind    string `json:"kind"`
				Message string `json:"message"`
				Deliver bool   `json:"deliver"`
				Channel string `json:"channel"`
				To      string `json:"to"`
			} `json:"payload"`
			State struct {
				NextRunAtMs int64  `json:"nextRunAtMs"`
				LastRunAtMs int64  `json:"lastRunAtMs"`
				LastStatus  string `json:"lastStatus"`
			} `json:"state"`
			CreatedAtMs int64 `json:"createdAtMs"`
			UpdatedAtMs int64 `json:"updatedAtMs"`
		} `json:"jobs"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("unmarshal saved file into nested layout: %v", err)
	}
	if len(doc.Jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(doc.Jobs))
	}
	got := doc.Jobs[0]
	if got.Schedule.Kind != "cron" || got.Schedule.Expr != "0 9 * * *" || got.Schedule.TZ != "Asia/Ho_Chi_Minh" {
		t.Fatalf("unexpected schedule doc: %+v", got.Schedule)
	}
	if got.Payload.Kind != "agent_turn" || got.Payload.Message != "ping" || !got.Payload.Deliver || got.Payload.Channel != "cli" || got.Payload.To != "local" {
		t.Fatalf("unexpected payload doc: %+v", got.Payload)
	}
	if got.State.NextRunAtMs != 1000 || got.State.LastRunAtMs != 500 || got.State.LastStatus != "ok" {
		t.Fatalf("unexpected state doc: %+v", got.State)
	}
	if got.CreatedAtMs != 111 || got.UpdatedAtMs != 222 {
		t.Fatalf("expected createdAtMs/updatedAtMs to round-trip, got %+v", got)
	}

	reloaded, err := NewStore(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	rj := reloaded.get(j.ID)
	if rj == nil {
		t.Fatal("expected reloaded job to be found by id")
	}
	if rj.CronTZ != "Asia/Ho_Chi_Minh" || rj.CreatedMs != 111 || rj.UpdatedMs != 222 {
		t.Fatalf("reloaded job lost fields: %+v", rj)
	}
}

func TestSoonestWakeIgnoresDisabledJobs(t *testing.T) {
	store, err := NewStore("")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	store.add(&Job{Name: "disabled-early", Enabled: false, NextRunMs: 100})
	store.add(&Job{Name: "enabled-later", Enabled: true, NextRunMs: 500})

	if got := store.soonestWake(); got != 500 {
		t.Fatalf("expected soonest wake to skip the disabled job and return 500, got %d", got)
	}
}
