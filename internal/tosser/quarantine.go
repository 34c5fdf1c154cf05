package tosser

import (
	"os"
	"path/filepath"

	"github.com/robwilkins/ftnbbs/internal/logging"
)

// quarantineProcessed moves a successfully-tossed artefact to Processed/
// (spec §4.8 step 8).
func (t *Tosser) quarantineProcessed(path, name string) {
	if t.cfg.ProcessedDir == "" {
		_ = os.Remove(path)
		return
	}
	dst := filepath.Join(t.cfg.ProcessedDir, name)
	if err := os.Rename(path, dst); err != nil {
		logging.Warn("tosser[%s]: move %s to Processed/: %v", t.cfg.NetworkName, path, err)
	}
}

// quarantineBad moves a malformed or unroutable artefact to Bad/ (spec
// §4.8 step 3/8).
func (t *Tosser) quarantineBad(path, name string) {
	if t.cfg.BadDir == "" {
		_ = os.Remove(path)
		return
	}
	dst := filepath.Join(t.cfg.BadDir, name)
	if err := os.Rename(path, dst); err != nil {
		logging.Warn("tosser[%s]: move %s to Bad/: %v", t.cfg.NetworkName, path, err)
	}
}
