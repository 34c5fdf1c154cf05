package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
board:
  name: Test Board
lines:
  - type: telnet
    enabled: true
    port: 2323
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Board.Name != "Test Board" {
		t.Fatalf("board name = %q", cfg.Board.Name)
	}
	if cfg.Board.IdleTimeout <= 0 {
		t.Fatalf("expected default idle timeout to be filled in")
	}
	if len(cfg.Lines) != 1 || cfg.Lines[0].Port != 2323 {
		t.Fatalf("lines = %+v", cfg.Lines)
	}
	if cfg.Paths.DataDir != "data" {
		t.Fatalf("paths.dataDir = %q, want default", cfg.Paths.DataDir)
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
