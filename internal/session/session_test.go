package session

import (
	"testing"
	"time"

	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

type countingRunner struct{ calls int }

func (r *countingRunner) Step(s *Session) error {
	r.calls++
	return nil
}

func TestSchedulerBindsAndStepsConnectedLines(t *testing.T) {
	lines := line.NewRegistry([]line.Type{line.Local}, nil)
	pl := pipe.NewPlane(1, 256)
	bus := events.NewBus(8)
	runner := &countingRunner{}

	sc := NewScheduler(lines, pl, bus, time.Minute, runner)
	l := lines.Get(0)
	if err := l.Connect("console", time.Now(), bus); err != nil {
		t.Fatalf("connect: %v", err)
	}

	sc.Tick()
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d, want 1", runner.calls)
	}
	if _, ok := sc.Session(0); !ok {
		t.Fatalf("expected session bound to line 0")
	}
}

func TestSchedulerDisconnectsIdleLine(t *testing.T) {
	lines := line.NewRegistry([]line.Type{line.Local}, nil)
	pl := pipe.NewPlane(1, 256)
	bus := events.NewBus(8)

	sc := NewScheduler(lines, pl, bus, time.Millisecond, nil)
	l := lines.Get(0)
	l.Connect("console", time.Now(), bus)
	sc.Bind(l)

	time.Sleep(5 * time.Millisecond)
	sc.Tick()

	if l.State() != line.Disconnected {
		t.Fatalf("line state = %v, want Disconnected after idle timeout", l.State())
	}
}

func TestIdleTimeoutPausedDuringTransfer(t *testing.T) {
	lines := line.NewRegistry([]line.Type{line.Local}, nil)
	pl := pipe.NewPlane(1, 256)
	bus := events.NewBus(8)

	l := lines.Get(0)
	l.Connect("console", time.Now(), bus)
	l.SetTransferActive(true, bus)

	s := New(l, pl, bus, time.Nanosecond)
	time.Sleep(time.Millisecond)
	if s.IdleExpired() {
		t.Fatalf("idle timeout should be paused while transfer is active")
	}
}

func TestSessionVarSpace(t *testing.T) {
	lines := line.NewRegistry([]line.Type{line.Local}, nil)
	pl := pipe.NewPlane(1, 256)
	bus := events.NewBus(8)
	l := lines.Get(0)
	l.Connect("console", time.Now(), bus)

	s := New(l, pl, bus, time.Minute)
	s.SetVar("foo", "bar")
	if got := s.Var("foo"); got != "bar" {
		t.Fatalf("Var(foo) = %q, want bar", got)
	}
}
