// Package session implements the line session runtime (C3): the
// DISCONNECTED/PRELOGON/AUTHENTICATED state machine itself lives on
// line.Line (spec §4.3's transitions are line.Line.Connect/BindUser/
// Disconnect); this package owns the per-connection execution context
// built on top of a bound Line — its ANSI terminal model, idle-timeout
// clock, and the "more?" paging height the script engine (C4) consults.
// Adapted from the teacher's internal/session package, which instead
// wrapped an SSH channel and gliderlabs/ssh.Pty; that coupling is gone
// since C2's transports speak only through the byte-pipe plane.
package session

import (
	"sync"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ansiterm"
	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

// Session is the runtime context for one connected Line: its terminal
// model, idle clock, and script-visible preferences.
type Session struct {
	Line     *line.Line
	Plane    *pipe.Plane
	Terminal *ansiterm.Terminal
	Bus      *events.Bus

	IdleTimeout time.Duration

	mu         sync.Mutex
	lastInput  time.Time
	started    time.Time
	varSpace   map[string]string
}

// New builds a Session for a freshly connected Line.
func New(l *line.Line, pl *pipe.Plane, bus *events.Bus, idleTimeout time.Duration) *Session {
	now := time.Now()
	s := &Session{
		Line:        l,
		Plane:       pl,
		Bus:         bus,
		IdleTimeout: idleTimeout,
		lastInput:   now,
		started:     now,
		varSpace:    make(map[string]string),
	}
	s.Terminal = ansiterm.New(nil, func(rows []int) {
		bus.Publish(events.Event{Kind: events.LineActivity, Line: l.ID(), Text: "blink"})
	})
	return s
}

// Touch records input activity, resetting the idle clock.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastInput = time.Now()
	s.mu.Unlock()
}

// IdleFor reports how long the line has gone without input.
func (s *Session) IdleFor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastInput)
}

// IdleExpired reports whether the idle timeout has elapsed. Per spec
// §4.3, the idle clock is paused while a file transfer is active.
func (s *Session) IdleExpired() bool {
	if s.IdleTimeout <= 0 {
		return false
	}
	if s.Line.TransferActive() {
		return false
	}
	return s.IdleFor() >= s.IdleTimeout
}

// Var and SetVar give the script engine (C4) access to the session's
// persistent variable-name-to-string mapping (spec §4.4 "Storage").
func (s *Session) Var(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.varSpace[name]
}

func (s *Session) SetVar(name, value string) {
	s.mu.Lock()
	s.varSpace[name] = value
	s.mu.Unlock()
}

// WriteOutput queues bytes to the line's output pipe and feeds the same
// bytes to the terminal model so the grid mirrors the remote screen.
func (s *Session) WriteOutput(data []byte) {
	s.Terminal.Feed(data)
	s.Plane.EnqueueOutput(s.Line.ID(), data)
}
