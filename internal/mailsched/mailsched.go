// Package mailsched drives the periodic FTN housekeeping jobs — tosser
// polls, scanner/pack runs, TIC processing, nodelist compiles — on
// cron schedules, recording run history to disk. Grounded on the
// teacher's internal/scheduler, which drove arbitrary shell-command
// "events" on robfig/cron/v3; here the jobs are fixed Go closures
// (toss/scan/pack/etc.) supplied by cmd/bbsd instead of external
// commands, but the cron wiring, concurrency guard and history
// persistence shape carry over unchanged.
package mailsched

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/robwilkins/ftnbbs/internal/logging"
)

// Job is one scheduled unit of work.
type Job struct {
	ID       string
	Name     string
	Schedule string // standard 5-field cron expression
	Run      func(ctx context.Context) error
}

// Scheduler runs configured Jobs on their cron schedules, guaranteeing
// at most one concurrent run per job id and persisting run history.
type Scheduler struct {
	cron        *cron.Cron
	historyPath string

	mu      sync.Mutex
	running map[string]bool
	history map[string]*JobHistory
}

// NewScheduler creates a Scheduler whose history persists at historyPath.
func NewScheduler(historyPath string) *Scheduler {
	history, err := LoadHistory(historyPath)
	if err != nil {
		logging.Warn("mailsched: load history %s: %v", historyPath, err)
		history = make(map[string]*JobHistory)
	}
	return &Scheduler{
		cron:        cron.New(),
		historyPath: historyPath,
		running:     make(map[string]bool),
		history:     history,
	}
}

// Add registers a job. Must be called before Start.
func (s *Scheduler) Add(j Job) error {
	_, err := s.cron.AddFunc(j.Schedule, func() { s.runJob(j) })
	if err != nil {
		return err
	}
	logging.Info("mailsched: job %q scheduled %q", j.ID, j.Schedule)
	return nil
}

// Start begins the cron loop; it returns immediately, running jobs on
// their own goroutines until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	go func() {
		<-ctx.Done()
		s.cron.Stop()
		if err := SaveHistory(s.historyPath, s.snapshotHistory()); err != nil {
			logging.Warn("mailsched: save history: %v", err)
		}
	}()
}

// RunNow executes a job's Run function immediately, bypassing its
// cron schedule.
func (s *Scheduler) RunNow(j Job) {
	s.runJob(j)
}

func (s *Scheduler) runJob(j Job) {
	s.mu.Lock()
	if s.running[j.ID] {
		s.mu.Unlock()
		logging.Warn("mailsched: job %q skipped, already running", j.ID)
		return
	}
	s.running[j.ID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, j.ID)
		s.mu.Unlock()
	}()

	start := time.Now()
	err := j.Run(context.Background())
	s.record(j.ID, start, time.Now(), err)
}

func (s *Scheduler) record(id string, start, end time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.history[id]
	if !ok {
		h = &JobHistory{JobID: id}
		s.history[id] = h
	}
	h.LastRun = end
	h.LastDurationMS = end.Sub(start).Milliseconds()
	h.RunCount++
	if err != nil {
		h.LastStatus = "failure"
		h.FailureCount++
		logging.Error("mailsched: job %q failed: %v", id, err)
	} else {
		h.LastStatus = "success"
		h.SuccessCount++
	}
}

func (s *Scheduler) snapshotHistory() map[string]*JobHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*JobHistory, len(s.history))
	for k, v := range s.history {
		cp := *v
		out[k] = &cp
	}
	return out
}

// History returns a snapshot of run history, keyed by job id, for the
// console status view.
func (s *Scheduler) History() map[string]*JobHistory {
	return s.snapshotHistory()
}
