package session

import (
	"time"

	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

// Runner runs one pass of a bound session's script engine; it blocks
// only for as long as there is script work to do and returns so the
// scheduler can re-check idle timeout and cancellation between calls.
// Implemented by internal/script (C4); defined here to avoid a C3->C4
// import cycle.
type Runner interface {
	Step(s *Session) error
}

// Scheduler drives every configured line's session loop: poll idle
// timeout and the cancellation flag, otherwise hand control to the
// script engine for one step.
type Scheduler struct {
	Lines       *line.Registry
	Plane       *pipe.Plane
	Bus         *events.Bus
	IdleTimeout time.Duration
	Runner      Runner

	sessions map[int]*Session
}

// NewScheduler wires a scheduler over an existing line registry.
func NewScheduler(lines *line.Registry, pl *pipe.Plane, bus *events.Bus, idleTimeout time.Duration, runner Runner) *Scheduler {
	return &Scheduler{
		Lines:       lines,
		Plane:       pl,
		Bus:         bus,
		IdleTimeout: idleTimeout,
		Runner:      runner,
		sessions:    make(map[int]*Session),
	}
}

// Tick visits every line once: stepping the script engine for bound
// sessions, and tearing down sessions whose line disconnected or was
// cancelled (spec §4.3's "any state -> DISCONNECTED" transitions and
// §5's cancellation contract).
func (sc *Scheduler) Tick() {
	for _, l := range sc.Lines.All() {
		id := l.ID()

		if l.State() == line.Disconnected {
			delete(sc.sessions, id)
			continue
		}

		if l.Cancelled() {
			delete(sc.sessions, id)
			l.Disconnect(sc.Bus)
			sc.Plane.Reset(id)
			continue
		}

		s, ok := sc.sessions[id]
		if !ok {
			s = sc.Bind(l)
		}

		if s.IdleExpired() {
			delete(sc.sessions, id)
			l.Disconnect(sc.Bus)
			sc.Plane.Reset(id)
			continue
		}

		if sc.Runner != nil {
			_ = sc.Runner.Step(s)
		}
	}
}

// Bind creates and registers a Session for a line that has just
// connected (PRELOGON or later).
func (sc *Scheduler) Bind(l *line.Line) *Session {
	s := New(l, sc.Plane, sc.Bus, sc.IdleTimeout)
	sc.sessions[l.ID()] = s
	return s
}

// Session returns the runtime session bound to a line, if any.
func (sc *Scheduler) Session(lineID int) (*Session, bool) {
	s, ok := sc.sessions[lineID]
	return s, ok
}
