package store

import (
	"path/filepath"
	"testing"
)

func TestRegistryAddUpdateSearch(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry[string](filepath.Join(dir, "widgets"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	id, err := reg.Add("first")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	got, ok, err := reg.SearchByID(id)
	if err != nil || !ok || got != "first" {
		t.Fatalf("search = %q, %v, %v", got, ok, err)
	}

	if err := reg.Update(id, "second"); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ = reg.SearchByID(id)
	if got != "second" {
		t.Fatalf("after update = %q, want second", got)
	}
}

func TestRegistryPayloadGrouping(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry[string](filepath.Join(dir, "files"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	lowDir, _ := reg.PayloadDir(5)
	highDir, _ := reg.PayloadDir(137)
	if filepath.Base(lowDir) != "0" {
		t.Fatalf("id 5 group = %s, want 0", filepath.Base(lowDir))
	}
	if filepath.Base(highDir) != "2" {
		t.Fatalf("id 137 group = %s, want 2 (137/60)", filepath.Base(highDir))
	}
}

func TestRegistryIndexMonotonic(t *testing.T) {
	dir := t.TempDir()
	reg, err := NewRegistry[string](filepath.Join(dir, "seq"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a, _ := reg.NextID()
	b, _ := reg.NextID()
	if b != a+1 {
		t.Fatalf("ids not monotonic: %d then %d", a, b)
	}
}
