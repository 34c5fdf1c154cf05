// Package line implements the Line entity of spec §3 and its 0..N-1
// registry: the per-channel state shared by the transports (C2) and the
// session runtime (C3).
package line

import (
	"fmt"
	"sync"
	"time"

	"github.com/robwilkins/ftnbbs/internal/events"
)

// Type is the configured transport kind of a line.
type Type string

const (
	Telnet Type = "telnet"
	Serial Type = "serial"
	Local  Type = "local"
)

// State is the line's connection/session state machine (spec §4.3).
type State int

const (
	Disconnected State = iota
	Prelogon
	Authenticated
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Prelogon:
		return "PRELOGON"
	case Authenticated:
		return "AUTHENTICATED"
	default:
		return "UNKNOWN"
	}
}

// NoUser marks a line's bound-user slot as empty.
const NoUser = 0

// Line holds the mutable state of a single channel into the BBS.
type Line struct {
	mu sync.Mutex

	id      int
	ltype   Type
	enabled bool

	state       State
	peer        string
	connectedAt time.Time

	boundUserID int
	activity    string

	transferActive bool
	cancelled      bool
}

// New constructs a Line in its initial DISCONNECTED state.
func New(id int, t Type, enabled bool) *Line {
	return &Line{id: id, ltype: t, enabled: enabled, state: Disconnected}
}

func (l *Line) ID() int     { return l.id }
func (l *Line) Type() Type  { return l.ltype }
func (l *Line) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

func (l *Line) SetEnabled(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = v
}

// Snapshot is an immutable copy of a Line's observable state, safe to hand
// to callers outside the lock (spec §9: value types instead of borrowed
// pointers from "get record" calls).
type Snapshot struct {
	ID             int
	Type           Type
	Enabled        bool
	State          State
	Peer           string
	ConnectedAt    time.Time
	BoundUserID    int
	Activity       string
	TransferActive bool
}

// Snapshot copies out the line's current state.
func (l *Line) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Snapshot{
		ID: l.id, Type: l.ltype, Enabled: l.enabled, State: l.state,
		Peer: l.peer, ConnectedAt: l.connectedAt, BoundUserID: l.boundUserID,
		Activity: l.activity, TransferActive: l.transferActive,
	}
}

// Connect transitions DISCONNECTED -> PRELOGON, recording the peer label
// and connect timestamp. Returns an error if the line is not currently
// disconnected.
func (l *Line) Connect(peer string, now time.Time, bus *events.Bus) error {
	l.mu.Lock()
	if l.state != Disconnected {
		l.mu.Unlock()
		return fmt.Errorf("line %d: connect called in state %s", l.id, l.state)
	}
	l.state = Prelogon
	l.peer = peer
	l.connectedAt = now
	l.cancelled = false
	l.mu.Unlock()

	if bus != nil {
		bus.Publish(events.Event{Kind: events.LineConnected, Line: l.id, Text: peer})
	}
	return nil
}

// BindUser transitions PRELOGON -> AUTHENTICATED, recording the bound
// user id and emitting "user bound".
func (l *Line) BindUser(userID int, realname string, bus *events.Bus) error {
	l.mu.Lock()
	if l.state != Prelogon {
		l.mu.Unlock()
		return fmt.Errorf("line %d: bind called in state %s", l.id, l.state)
	}
	l.state = Authenticated
	l.boundUserID = userID
	l.mu.Unlock()

	if bus != nil {
		bus.Publish(events.Event{Kind: events.LineUserBound, Line: l.id, Text: realname})
	}
	return nil
}

// Disconnect returns the line to DISCONNECTED, clearing the bound user and
// activity label (invariant: a DISCONNECTED line has no bound user and an
// empty activity label). Emits "user unbound" (if a user was bound) then
// "line disconnected".
func (l *Line) Disconnect(bus *events.Bus) {
	l.mu.Lock()
	hadUser := l.boundUserID != NoUser
	l.state = Disconnected
	l.peer = ""
	l.boundUserID = NoUser
	l.activity = ""
	l.transferActive = false
	l.cancelled = false
	l.mu.Unlock()

	if bus == nil {
		return
	}
	if hadUser {
		bus.Publish(events.Event{Kind: events.LineUserUnbound, Line: l.id})
	}
	bus.Publish(events.Event{Kind: events.LineDisconnected, Line: l.id})
}

// SetActivity updates the free-text activity label, clamped to
// events.MaxActivityLen, and emits "line-activity".
func (l *Line) SetActivity(text string, bus *events.Bus) {
	text = events.TruncateActivity(text)
	l.mu.Lock()
	l.activity = text
	l.mu.Unlock()
	if bus != nil {
		bus.Publish(events.Event{Kind: events.LineActivity, Line: l.id, Text: text})
	}
}

// SetTransferActive toggles the transfer-active flag, which suppresses
// idle timeout and switches transports to binary/IAC-transparent mode.
func (l *Line) SetTransferActive(active bool, bus *events.Bus) {
	l.mu.Lock()
	l.transferActive = active
	l.mu.Unlock()
	if bus != nil {
		bus.Publish(events.Event{Kind: events.TransferActive, Line: l.id, Bool: active})
	}
}

// TransferActive reports the current transfer-active flag.
func (l *Line) TransferActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transferActive
}

// State reports the line's current state.
func (l *Line) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// BoundUserID reports the bound user id, or NoUser.
func (l *Line) BoundUserID() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.boundUserID
}

// Cancel raises the cancellation flag (spec §5): the next scheduler visit
// must abort any active transfer, pop the script call stack, unbind the
// user, and disconnect.
func (l *Line) Cancel() {
	l.mu.Lock()
	l.cancelled = true
	l.mu.Unlock()
}

// Cancelled reports the cancellation flag without clearing it; Connect
// and Disconnect clear it.
func (l *Line) Cancelled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancelled
}

// Registry holds all configured lines, indexed 0..N-1.
type Registry struct {
	mu         sync.Mutex
	lines      []*Line
	accepting  bool
}

// NewRegistry creates a registry with one line per entry of types; a nil
// enabled enables every line, otherwise len(enabled) must equal len(types).
func NewRegistry(types []Type, enabled []bool) *Registry {
	r := &Registry{lines: make([]*Line, len(types)), accepting: true}
	for i, t := range types {
		en := true
		if enabled != nil {
			en = enabled[i]
		}
		r.lines[i] = New(i, t, en)
	}
	return r
}

// SetAccepting toggles whether FreeLine will hand out a line for a new
// inbound connection (the console's "set accepting new connections"
// command); it never affects lines already bound.
func (r *Registry) SetAccepting(v bool) {
	r.mu.Lock()
	r.accepting = v
	r.mu.Unlock()
}

// Accepting reports the current accepting-new-connections flag.
func (r *Registry) Accepting() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accepting
}

// Get returns the line at index i, or nil if out of range.
func (r *Registry) Get(i int) *Line {
	if i < 0 || i >= len(r.lines) {
		return nil
	}
	return r.lines[i]
}

// Count returns the number of configured lines.
func (r *Registry) Count() int { return len(r.lines) }

// All returns every configured line, in index order.
func (r *Registry) All() []*Line {
	out := make([]*Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// FreeLine returns the first DISCONNECTED, enabled line of the given type,
// or nil if none is available (spec §7 "Resource: no free line") or new
// connections are currently suppressed.
func (r *Registry) FreeLine(t Type) *Line {
	if !r.Accepting() {
		return nil
	}
	for _, l := range r.lines {
		if l.Type() == t && l.Enabled() && l.State() == Disconnected {
			return l
		}
	}
	return nil
}
