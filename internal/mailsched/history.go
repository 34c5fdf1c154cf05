package mailsched

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/robwilkins/ftnbbs/internal/logging"
)

// JobHistory tracks one job's execution statistics across runs.
type JobHistory struct {
	JobID          string    `json:"jobId"`
	LastRun        time.Time `json:"lastRun"`
	LastStatus     string `json:"lastStatus"`
	LastDurationMS int64  `json:"lastDurationMs"`
	RunCount       int    `json:"runCount"`
	SuccessCount   int    `json:"successCount"`
	FailureCount   int    `json:"failureCount"`
}

// LoadHistory loads job history from a JSON file, returning an empty
// map if the file does not yet exist.
func LoadHistory(path string) (map[string]*JobHistory, error) {
	history := make(map[string]*JobHistory)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return history, nil
		}
		return nil, err
	}
	var list []JobHistory
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	for i := range list {
		history[list[i].JobID] = &list[i]
	}
	logging.Info("mailsched: loaded history for %d jobs from %s", len(history), path)
	return history, nil
}

// SaveHistory persists job history to a JSON file.
func SaveHistory(path string, history map[string]*JobHistory) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	list := make([]JobHistory, 0, len(history))
	for _, h := range history {
		list = append(list, *h)
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
