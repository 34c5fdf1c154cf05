package line

import (
	"testing"
	"time"

	"github.com/robwilkins/ftnbbs/internal/events"
)

func TestConnectBindDisconnectLifecycle(t *testing.T) {
	bus := events.NewBus(8)
	l := New(0, Telnet, true)

	if err := l.Connect("1.2.3.4", time.Now(), bus); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if l.State() != Prelogon {
		t.Fatalf("state = %v, want Prelogon", l.State())
	}

	if err := l.BindUser(42, "Dave", bus); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if l.State() != Authenticated || l.BoundUserID() != 42 {
		t.Fatalf("state=%v user=%d, want Authenticated/42", l.State(), l.BoundUserID())
	}

	l.Disconnect(bus)
	snap := l.Snapshot()
	if snap.State != Disconnected || snap.BoundUserID != NoUser || snap.Activity != "" {
		t.Fatalf("disconnect invariant violated: %+v", snap)
	}
}

func TestDoubleConnectFails(t *testing.T) {
	l := New(0, Telnet, true)
	if err := l.Connect("x", time.Now(), nil); err != nil {
		t.Fatalf("first connect: %v", err)
	}
	if err := l.Connect("y", time.Now(), nil); err == nil {
		t.Fatalf("expected error connecting an already-connected line")
	}
}

func TestActivityTruncation(t *testing.T) {
	l := New(0, Telnet, true)
	long := make([]byte, 200)
	for i := range long {
		long[i] = 'x'
	}
	l.SetActivity(string(long), nil)
	if got := l.Snapshot().Activity; len(got) != events.MaxActivityLen {
		t.Fatalf("activity len = %d, want %d", len(got), events.MaxActivityLen)
	}
}

func TestFreeLineSkipsDisabledAndBusy(t *testing.T) {
	reg := NewRegistry([]Type{Telnet, Telnet, Telnet}, []bool{false, true, true})
	reg.Get(1).Connect("peer", time.Now(), nil)

	free := reg.FreeLine(Telnet)
	if free == nil || free.ID() != 2 {
		t.Fatalf("expected line 2 free, got %v", free)
	}
}
