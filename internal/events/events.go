// Package events implements the §6 UI contract: the typed event/command
// boundary between the core and the out-of-scope desktop shell (or, in
// this repo, cmd/bbsconsole).
package events

// Kind identifies an event emitted by the core.
type Kind string

const (
	LineRegistered    Kind = "line-registered"
	LineActivity      Kind = "line-activity"
	LineUserBound     Kind = "line-user-bound"
	LineUserUnbound   Kind = "line-user-unbound"
	LineConnected     Kind = "line-connected"
	LineDisconnected  Kind = "line-disconnected"
	TransferActive    Kind = "transfer-active"

	// BoardStatus is not one of §6's seven named events; it's how the
	// core answers the same section's "the shell also reads call-total
	// and uptime" requirement without inventing a second RPC surface.
	// Line is unused (-1); Text carries "calls=<n> uptime=<seconds>".
	BoardStatus Kind = "board-status"
)

// MaxActivityLen is the maximum length of a LineActivity text payload.
const MaxActivityLen = 96

// Event is a single observable occurrence, tagged with the line it
// concerns where relevant (Line == -1 for system-wide events).
type Event struct {
	Kind Kind
	Line int
	Text string // activity text, peer label, or realname depending on Kind
	Bool bool   // TransferActive payload
}

// CommandKind identifies a command the shell may issue to the core.
type CommandKind string

const (
	CmdDisconnectLine       CommandKind = "disconnect-line"
	CmdViewLine             CommandKind = "view-line" // snoop
	CmdLogonLine            CommandKind = "logon-line"
	CmdSetAcceptingNewConns CommandKind = "set-accepting-new-connections"
	CmdSetChatPager         CommandKind = "set-chat-pager"
)

// Command is a single command accepted from the shell.
type Command struct {
	Kind CommandKind
	Line int
	Bool bool
}

// Bus is a small event/command bus. The core publishes Events and
// consumes Commands. Events go to one shared channel, so each event is
// received by a single reader; with no reader, events are dropped once
// the buffer is full.
type Bus struct {
	events   chan Event
	commands chan Command
}

// NewBus creates a bus with the given buffer depth per channel.
func NewBus(buffer int) *Bus {
	return &Bus{
		events:   make(chan Event, buffer),
		commands: make(chan Command, buffer),
	}
}

// Publish emits an event. Non-blocking: if the buffer is full the event is
// dropped rather than stalling the core (events are advisory to the UI,
// never load-bearing for correctness).
func (b *Bus) Publish(e Event) {
	select {
	case b.events <- e:
	default:
	}
}

// Events returns the channel shells read events from.
func (b *Bus) Events() <-chan Event { return b.events }

// SendCommand delivers a command from a shell to the core. Blocks until
// accepted; callers typically run this from their own goroutine.
func (b *Bus) SendCommand(c Command) {
	b.commands <- c
}

// Commands returns the channel the core reads shell commands from.
func (b *Bus) Commands() <-chan Command { return b.commands }

// TruncateActivity clamps text to MaxActivityLen bytes, matching the
// Line.Activity field width.
func TruncateActivity(text string) string {
	if len(text) <= MaxActivityLen {
		return text
	}
	return text[:MaxActivityLen]
}
