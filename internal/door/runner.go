// Package door runs external door programs attached to a line's pipe
// pair via a real pseudo-terminal, adapted from the teacher's
// internal/transfer/pty.go RunCommandWithPTY (which it used to attach
// sz/rz; the door is the legitimate remaining use of that pattern once
// C5's transfer protocols become native state machines).
package door

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"

	"github.com/robwilkins/ftnbbs/internal/logging"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

// WindowSize is a terminal size in character cells.
type WindowSize struct {
	Rows, Cols uint16
}

// Info is the stable door ABI handed to an external program, independent
// of the internal storage shape (spec §9's DoorUserInfo/DoorSystemInfo
// note) — serialized to the door's environment or a drop file by the
// caller; this type is the in-process value passed to Run.
type Info struct {
	NodeNumber   int
	UserID       int
	Alias        string
	RealName     string
	AccessLevel  int
	Keys         string // 26-slot A-Z bitmap rendered as present letters
	TimeLeftMins int
	Width        int
	Height       int
	BBSName      string
	SysopName    string
}

// ErrForceDisconnect is returned by Run when the line cancelled while a
// door subprocess was active; the caller signals the process and reaps it.
var ErrForceDisconnect = errors.New("door: force disconnect requested")

// Run starts cmd attached to a PTY of the given size, copying bytes
// between the line's pipe pair (line plane, not a raw net.Conn — the
// script's `door` builtin suspends the session while this runs) and the
// PTY. cancel is polled between copy loop iterations; when it reports
// true the subprocess is signalled and Run returns ErrForceDisconnect.
func Run(pl *pipe.Plane, lineID int, cmd *exec.Cmd, size WindowSize, cancel func() bool) error {
	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: size.Rows, Cols: size.Cols})
	if err != nil {
		return err
	}
	defer ptmx.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	done := make(chan struct{})

	// Line input (from caller) -> PTY.
	go func() {
		defer wg.Done()
		buf := make([]byte, 256)
		for {
			select {
			case <-done:
				return
			default:
			}
			n := pl.DequeueInputBlock(lineID, buf)
			if n == 0 {
				time.Sleep(5 * time.Millisecond)
				continue
			}
			if _, err := ptmx.Write(buf[:n]); err != nil {
				if !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
					logging.Warn("door: write to pty failed: %v", err)
				}
				return
			}
		}
	}()

	// PTY -> line output (to caller).
	go func() {
		defer wg.Done()
		buf := make([]byte, 4096)
		for {
			n, err := ptmx.Read(buf)
			if n > 0 {
				pl.EnqueueOutput(lineID, buf[:n])
			}
			if err != nil {
				if err != io.EOF && !errors.Is(err, os.ErrClosed) && !errors.Is(err, syscall.EIO) {
					logging.Warn("door: read from pty failed: %v", err)
				}
				return
			}
		}
	}()

	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	cancelled := false
	var waitErr error
loop:
	for {
		select {
		case waitErr = <-exited:
			break loop
		case <-poll.C:
			if cancel != nil && cancel() {
				cancelled = true
				_ = cmd.Process.Signal(syscall.SIGTERM)
				cancel = nil // signal once
			}
		}
	}
	close(done)
	wg.Wait()
	if cancelled {
		return ErrForceDisconnect
	}
	return waitErr
}
