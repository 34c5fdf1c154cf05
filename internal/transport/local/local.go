// Package local implements the console (local) line transport (C2): it
// never accepts external connections — a sysop command drives
// connect/disconnect — and pumps the controlling terminal's raw-mode
// stdin/stdout against the line's pipe pair via golang.org/x/term, the
// same raw-mode library the teacher's door PTY path depends on
// transitively through creack/pty.
package local

import (
	"os"
	"time"

	"golang.org/x/term"

	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

// Console drives the local line from the process's own controlling
// terminal.
type Console struct {
	Plane *pipe.Plane
	Line  *line.Line
	Bus   *events.Bus
}

// Connect puts the terminal in raw mode and binds the local line,
// invoked by the "local logon" sysop command (spec §4.2/§6).
func (c *Console) Connect() (func(), error) {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	if err := c.Line.Connect("console", time.Now(), c.Bus); err != nil {
		term.Restore(fd, oldState)
		return nil, err
	}

	stop := make(chan struct{})
	go c.pumpInbound(stop)
	go c.pumpOutbound(stop)

	return func() {
		close(stop)
		term.Restore(fd, oldState)
		c.Line.Disconnect(c.Bus)
		c.Plane.Reset(c.Line.ID())
	}, nil
}

func (c *Console) pumpInbound(stop <-chan struct{}) {
	buf := make([]byte, 256)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			c.Plane.EnqueueInput(c.Line.ID(), buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (c *Console) pumpOutbound(stop <-chan struct{}) {
	buf := make([]byte, 4096)
	for {
		select {
		case <-stop:
			return
		default:
		}
		n := c.Plane.DequeueOutput(c.Line.ID(), buf)
		if n == 0 {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		os.Stdout.Write(buf[:n])
	}
}
