package mailsched

import (
	"context"
	"path/filepath"
	"testing"
)

func TestRunNowRecordsHistory(t *testing.T) {
	dir := t.TempDir()
	s := NewScheduler(filepath.Join(dir, "history.json"))

	ran := false
	job := Job{ID: "toss", Name: "toss", Schedule: "@every 1h", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}}
	s.RunNow(job)

	if !ran {
		t.Fatal("expected job to run")
	}
	h := s.History()["toss"]
	if h == nil || h.RunCount != 1 || h.LastStatus != "success" {
		t.Fatalf("history = %+v", h)
	}
}

func TestRunNowSkipsWhileRunning(t *testing.T) {
	dir := t.TempDir()
	s := NewScheduler(filepath.Join(dir, "history.json"))
	s.running["busy"] = true

	ran := false
	job := Job{ID: "busy", Schedule: "@every 1h", Run: func(ctx context.Context) error {
		ran = true
		return nil
	}}
	s.RunNow(job)
	if ran {
		t.Fatal("job should have been skipped while marked running")
	}
}
