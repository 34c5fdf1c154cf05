package calllog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRecordWritesExpectedFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Calls")

	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	at := time.Date(2026, 8, 6, 14, 30, 5, 0, time.UTC)
	if err := w.Record(at, 2, 42, Answered); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(data))
	want := "06/08/2026,14:30:05,2,42,Answered"
	if line != want {
		t.Fatalf("got %q, want %q", line, want)
	}
}

func TestRecordAppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Calls")

	w1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w1.Record(time.Now(), 1, 1, Answered)
	w1.Close()

	w2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	w2.Record(time.Now(), 2, 2, Rejected)
	w2.Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
}
