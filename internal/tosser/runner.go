package tosser

import (
	"context"
	"time"

	"github.com/robwilkins/ftnbbs/internal/logging"
)

// Run polls the inbound directory at interval until ctx is cancelled.
// A zero interval means "run once and return" (used by mailsched's own
// cron trigger instead of a built-in ticker).
func (t *Tosser) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		t.ProcessInbound()
		return
	}

	logging.Info("tosser[%s]: polling every %v", t.cfg.NetworkName, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := t.cfg.DupeDB.Save(); err != nil {
				logging.Warn("tosser[%s]: save dupe db on shutdown: %v", t.cfg.NetworkName, err)
			}
			return
		case <-ticker.C:
			t.runCycle()
		}
	}
}

func (t *Tosser) runCycle() {
	result := t.ProcessInbound()
	if result.PacketsProcessed > 0 {
		logging.Info("tosser[%s]: imported=%d bad=%d dupes=%d loops=%d packets=%d",
			t.cfg.NetworkName, result.MessagesImported, result.MessagesBad,
			result.DupesSkipped, result.LoopsDropped, result.PacketsProcessed)
	}
	for _, e := range result.Errors {
		logging.Error("tosser[%s]: %s", t.cfg.NetworkName, e)
	}
}

// PurgeDupes removes old entries from the dupe database.
func (t *Tosser) PurgeDupes() error {
	return t.cfg.DupeDB.Purge()
}
