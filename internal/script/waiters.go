package script

import (
	"time"

	"github.com/robwilkins/ftnbbs/internal/chat"
	"github.com/robwilkins/ftnbbs/internal/session"
)

// lineInputWait collects bytes until CR, honoring echo, and stores the
// result in a session variable (spec §4.4 `prompt`/`readline`).
type lineInputWait struct {
	varName string
	echo    bool
	buf     []byte
}

func (w *lineInputWait) poll(s *session.Session, st *runState) (bool, error) {
	for {
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			return false, nil // nothing pending; stay suspended
		}
		s.Touch()
		switch b {
		case '\r', '\n':
			s.SetVar(w.varName, string(w.buf))
			if w.echo {
				s.WriteOutput([]byte("\r\n"))
			}
			return true, nil
		case 0x08, 0x7f: // backspace/delete
			if n := len(w.buf); n > 0 {
				w.buf = w.buf[:n-1]
				if w.echo {
					s.WriteOutput([]byte("\b \b"))
				}
			}
		default:
			if b >= 0x20 && b < 0x7f {
				w.buf = append(w.buf, b)
				if w.echo {
					s.WriteOutput([]byte{b})
				}
			}
		}
	}
}

// keyWait collects a single byte (spec §4.4 `prompt v char`, `anykey`).
type keyWait struct {
	varName string // empty for anykey, which discards the byte
	echo    bool
}

func (w *keyWait) poll(s *session.Session, st *runState) (bool, error) {
	b, err := s.Plane.DequeueInput(s.Line.ID())
	if err != nil {
		return false, nil
	}
	s.Touch()
	if w.varName != "" {
		s.SetVar(w.varName, string([]byte{b}))
	}
	if w.echo {
		s.WriteOutput([]byte{b})
	}
	return true, nil
}

// yesnoWait waits for Y/y/N/n and sets the result var to "1"/"0".
type yesnoWait struct{ varName string }

func (w *yesnoWait) poll(s *session.Session, st *runState) (bool, error) {
	b, err := s.Plane.DequeueInput(s.Line.ID())
	if err != nil {
		return false, nil
	}
	s.Touch()
	switch b {
	case 'y', 'Y':
		s.SetVar(w.varName, "1")
		s.WriteOutput([]byte("Y\r\n"))
		return true, nil
	case 'n', 'N':
		s.SetVar(w.varName, "0")
		s.WriteOutput([]byte("N\r\n"))
		return true, nil
	}
	return false, nil
}

// detectAnsiWait sends ESC[6n and waits up to a deadline for a CPR
// reply (`ESC[row;colR`), setting the result var per spec §4.4
// `detectansi`.
type detectAnsiWait struct {
	varName  string
	deadline time.Time
	buf      []byte
	sent     bool
}

func (w *detectAnsiWait) poll(s *session.Session, st *runState) (bool, error) {
	if !w.sent {
		s.WriteOutput([]byte("\x1b[6n"))
		w.sent = true
	}
	for {
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			break
		}
		w.buf = append(w.buf, b)
		if b == 'R' {
			s.SetVar(w.varName, "1")
			s.Terminal.Feed(w.buf)
			return true, nil
		}
	}
	if time.Now().After(w.deadline) {
		s.SetVar(w.varName, "0")
		return true, nil
	}
	return false, nil
}

// morePromptWait implements the "More?" pager: show a reverse-video
// prompt, wait for one key, then either continue or abort paging for
// the rest of the session (spec §4.4 "More? paging").
type morePromptWait struct {
	shown bool
}

func (w *morePromptWait) poll(s *session.Session, st *runState) (bool, error) {
	if !w.shown {
		s.WriteOutput([]byte("\x1b[7mMore?\x1b[0m"))
		w.shown = true
	}
	b, err := s.Plane.DequeueInput(s.Line.ID())
	if err != nil {
		return false, nil
	}
	s.Touch()
	s.WriteOutput([]byte("\r\x1b[K"))
	st.lineCount = 0
	switch b {
	case 'q', 'Q', 'n', 'N', 0x03:
		st.moreOn = false
	}
	return true, nil
}

// transferWait blocks script execution on a goroutine-driven file
// transfer (C5) without blocking the scheduler thread.
type transferWait struct {
	done chan struct{}
	err  error
}

func (w *transferWait) poll(s *session.Session, st *runState) (bool, error) {
	select {
	case <-w.done:
		return true, w.err
	default:
		return false, nil
	}
}

// chatWait keeps a session in the chat room: every poll drains any
// buffered incoming broadcasts, then collects the user's own input
// line, broadcasting it on CR and leaving on "/quit".
type chatWait struct {
	room   *chat.ChatRoom
	ch     <-chan chat.ChatMessage
	handle string
	buf    []byte
}

func (w *chatWait) poll(s *session.Session, st *runState) (bool, error) {
	draining := true
	for draining {
		select {
		case msg, ok := <-w.ch:
			if !ok {
				return true, nil
			}
			if msg.IsSystem {
				s.WriteOutput([]byte("\r\n" + msg.Text + "\r\n"))
			} else {
				s.WriteOutput([]byte("\r\n" + msg.Handle + "> " + msg.Text + "\r\n"))
			}
		default:
			draining = false
		}
	}

	for {
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			return false, nil
		}
		s.Touch()
		switch b {
		case '\r', '\n':
			line := string(w.buf)
			w.buf = nil
			s.WriteOutput([]byte("\r\n"))
			if line == "/quit" {
				w.room.Unsubscribe(s.Line.ID())
				w.room.BroadcastSystem("*** " + w.handle + " has left chat ***")
				return true, nil
			}
			if line != "" {
				w.room.Broadcast(s.Line.ID(), w.handle, line)
			}
			return false, nil
		case 0x08, 0x7f:
			if n := len(w.buf); n > 0 {
				w.buf = w.buf[:n-1]
				s.WriteOutput([]byte("\b \b"))
			}
		default:
			if b >= 0x20 && b < 0x7f {
				w.buf = append(w.buf, b)
				s.WriteOutput([]byte{b})
			}
		}
	}
}
