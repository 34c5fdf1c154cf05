package script

import (
	"fmt"

	"github.com/robwilkins/ftnbbs/internal/session"
)

// logonFlow drives the `logon` builtin's authentication subdialog
// across several suspend/resume cycles: username, then password, then
// authenticate-and-bind (spec §4.4 `logon`).
type logonFlow struct {
	ctx   *Context
	stage int
	user  []byte
	pass  []byte
	asked bool
}

func (w *logonFlow) poll(s *session.Session, st *runState) (bool, error) {
	switch w.stage {
	case 0:
		if !w.asked {
			s.WriteOutput([]byte("Username: "))
			w.asked = true
		}
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			return false, nil
		}
		s.Touch()
		if b == '\r' || b == '\n' {
			s.WriteOutput([]byte("\r\n"))
			w.stage = 1
			w.asked = false
			return false, nil
		}
		if b == 0x08 || b == 0x7f {
			if n := len(w.user); n > 0 {
				w.user = w.user[:n-1]
				s.WriteOutput([]byte("\b \b"))
			}
			return false, nil
		}
		if b >= 0x20 && b < 0x7f {
			w.user = append(w.user, b)
			s.WriteOutput([]byte{b})
		}
		return false, nil

	case 1:
		if !w.asked {
			s.WriteOutput([]byte("Password: "))
			w.asked = true
		}
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			return false, nil
		}
		s.Touch()
		if b == '\r' || b == '\n' {
			s.WriteOutput([]byte("\r\n"))
			w.stage = 2
			return false, nil
		}
		if b == 0x08 || b == 0x7f {
			if n := len(w.pass); n > 0 {
				w.pass = w.pass[:n-1]
			}
			return false, nil
		}
		if b >= 0x20 && b < 0x7f {
			w.pass = append(w.pass, b)
		}
		return false, nil

	case 2:
		if w.ctx == nil || w.ctx.Users == nil {
			s.SetVar("logon_result", "0")
			return true, nil
		}
		u, err := w.ctx.Users.Authenticate(string(w.user), string(w.pass))
		if err != nil {
			s.SetVar("logon_result", "0")
			s.WriteOutput([]byte("Invalid logon.\r\n"))
			return true, nil
		}
		if err := s.Line.BindUser(u.ID, u.Handle, s.Bus); err != nil {
			s.SetVar("logon_result", "0")
			return true, nil
		}
		s.SetVar("logon_result", "1")
		s.WriteOutput([]byte(fmt.Sprintf("Welcome back, %s.\r\n", u.Handle)))
		return true, nil
	}
	return true, nil
}

func (e *Engine) doLogon(s *session.Session, st *runState, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	return suspend(&logonFlow{ctx: e.Ctx})
}

// newuserFlow drives guided registration: desired username
// (availability-checked), password, and a display handle (spec §4.4
// `newuser`).
type newuserFlow struct {
	ctx    *Context
	stage  int
	user   []byte
	pass   []byte
	handle []byte
	asked  bool
}

func (w *newuserFlow) poll(s *session.Session, st *runState) (bool, error) {
	readLine := func(buf *[]byte) (line string, done bool) {
		b, err := s.Plane.DequeueInput(s.Line.ID())
		if err != nil {
			return "", false
		}
		s.Touch()
		if b == '\r' || b == '\n' {
			s.WriteOutput([]byte("\r\n"))
			return string(*buf), true
		}
		if b == 0x08 || b == 0x7f {
			if n := len(*buf); n > 0 {
				*buf = (*buf)[:n-1]
				s.WriteOutput([]byte("\b \b"))
			}
			return "", false
		}
		if b >= 0x20 && b < 0x7f {
			*buf = append(*buf, b)
			s.WriteOutput([]byte{b})
		}
		return "", false
	}

	switch w.stage {
	case 0:
		if !w.asked {
			s.WriteOutput([]byte("Desired username: "))
			w.asked = true
		}
		if _, done := readLine(&w.user); done {
			// Availability is checked by CreateUser's duplicate-username
			// rejection once the full subdialog completes (stage 3).
			w.stage = 1
			w.asked = false
		}
		return false, nil
	case 1:
		if !w.asked {
			s.WriteOutput([]byte("Password: "))
			w.asked = true
		}
		if _, done := readLine(&w.pass); done {
			w.stage = 2
			w.asked = false
		}
		return false, nil
	case 2:
		if !w.asked {
			s.WriteOutput([]byte("Handle: "))
			w.asked = true
		}
		if _, done := readLine(&w.handle); done {
			w.stage = 3
		}
		return false, nil
	case 3:
		if w.ctx == nil || w.ctx.Users == nil {
			s.SetVar("newuser_result", "0")
			return true, nil
		}
		u, err := w.ctx.Users.CreateUser(string(w.user), string(w.pass), string(w.handle), string(w.handle))
		if err != nil {
			s.SetVar("newuser_result", "0")
			s.WriteOutput([]byte(fmt.Sprintf("Registration failed: %v\r\n", err)))
			return true, nil
		}
		if err := s.Line.BindUser(u.ID, u.Handle, s.Bus); err != nil {
			s.SetVar("newuser_result", "0")
			return true, nil
		}
		s.SetVar("newuser_result", "1")
		s.WriteOutput([]byte(fmt.Sprintf("Welcome, %s.\r\n", u.Handle)))
		return true, nil
	}
	return true, nil
}

func (e *Engine) doNewuser(s *session.Session, st *runState, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	return suspend(&newuserFlow{ctx: e.Ctx})
}
