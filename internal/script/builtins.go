package script

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/session"
	"github.com/robwilkins/ftnbbs/internal/store"
)

// dispatch runs one builtin command, advancing the frame's pc on
// completion, or installing st.waiting (and returning halt=true) when
// the command needs external input.
func (e *Engine) dispatch(s *session.Session, st *runState, args []string) (halt bool, err error) {
	fr := st.top()
	if len(args) == 0 {
		fr.pc++
		return false, nil
	}
	cmd := strings.ToLower(args[0])
	rest := args[1:]

	advance := func() (bool, error) { fr.pc++; return false, nil }
	suspend := func(w waiter) (bool, error) { st.waiting = w; fr.pc++; return true, nil }

	switch cmd {
	case "print":
		text := strings.Join(e.expandAll(s, rest), " ")
		return e.doPrint(s, st, text)

	case "set":
		if len(rest) < 2 {
			return false, fmt.Errorf("script: set requires var and expression")
		}
		s.SetVar(rest[0], e.expand(s, strings.Join(rest[1:], " ")))
		return advance()

	case "add", "sub", "mul", "div", "mod":
		if len(rest) != 3 {
			return false, fmt.Errorf("script: %s requires r a b", cmd)
		}
		a, _ := atoiSigned(e.expand(s, rest[1]))
		b, _ := atoiSigned(e.expand(s, rest[2]))
		var r int
		switch cmd {
		case "add":
			r = a + b
		case "sub":
			r = a - b
		case "mul":
			r = a * b
		case "div":
			if b == 0 {
				r = 0
			} else {
				r = a / b
			}
		case "mod":
			if b == 0 {
				r = 0
			} else {
				r = a % b
			}
		}
		s.SetVar(rest[0], itoa(r))
		return advance()

	case "random":
		if len(rest) != 3 {
			return false, fmt.Errorf("script: random requires r lo hi")
		}
		lo, _ := atoiSigned(e.expand(s, rest[1]))
		hi, _ := atoiSigned(e.expand(s, rest[2]))
		if hi < lo {
			lo, hi = hi, lo
		}
		s.SetVar(rest[0], itoa(lo+rand.Intn(hi-lo+1)))
		return advance()

	case "strlen":
		if len(rest) != 2 {
			return false, fmt.Errorf("script: strlen requires r s")
		}
		s.SetVar(rest[0], itoa(len(e.expand(s, rest[1]))))
		return advance()

	case "haskey":
		if len(rest) != 2 {
			return false, fmt.Errorf("script: haskey requires r c")
		}
		letter := e.expand(s, rest[1])
		keys, _ := e.macro(s, "keys")
		has := letter != "" && strings.Contains(keys, letter)
		s.SetVar(rest[0], boolStr(has))
		return advance()

	case "detectansi":
		timeoutMS := 3000
		if len(rest) >= 1 {
			if n, err := strconv.Atoi(e.expand(s, rest[0])); err == nil {
				timeoutMS = n
			}
		}
		varName := "ansi_detected"
		if len(rest) >= 2 {
			varName = rest[1]
		}
		return suspend(&detectAnsiWait{varName: varName, deadline: time.Now().Add(time.Duration(timeoutMS) * time.Millisecond)})

	case "cls":
		s.Terminal.Cls()
		st.lineCount = 0
		return advance()

	case "fgbg":
		// terminal-model mutation only; actual SGR bytes are emitted by
		// the script source itself via `print`, so this just tracks
		// session defaults for later `std` resets.
		if len(rest) == 2 {
			s.SetVar("__fg", e.expand(s, rest[0]))
			s.SetVar("__bg", e.expand(s, rest[1]))
		}
		return advance()

	case "bold":
		s.SetVar("__bold", "1")
		return advance()

	case "std":
		s.SetVar("__bold", "0")
		s.SetVar("__flash", "0")
		return advance()

	case "flash":
		if len(rest) == 1 {
			s.SetVar("__flash", e.expand(s, rest[0]))
		}
		return advance()

	case "prompt":
		return e.doPrompt(s, st, rest, suspend, advance)

	case "readline":
		echo := true
		if len(rest) >= 2 && strings.ToLower(rest[1]) == "noecho" {
			echo = false
		}
		if len(rest) == 0 {
			return false, fmt.Errorf("script: readline requires a var")
		}
		return suspend(&lineInputWait{varName: rest[0], echo: echo})

	case "yesno":
		if len(rest) != 1 {
			return false, fmt.Errorf("script: yesno requires a var")
		}
		return suspend(&yesnoWait{varName: rest[0]})

	case "anykey":
		if len(rest) == 1 {
			// rest[0] names an ANSI art file; the caller is expected to
			// have already printed it via `print` - art rendering is
			// not a separate builtin.
		}
		return suspend(&keyWait{})

	case "more":
		if len(rest) == 1 {
			st.moreOn = e.expand(s, rest[0]) == "1"
			st.moreOverridden = true
		}
		return advance()

	case "doing":
		text := strings.Join(e.expandAll(s, rest), " ")
		s.Line.SetActivity(text, s.Bus)
		return advance()

	case "script":
		if len(rest) != 1 {
			return false, fmt.Errorf("script: script requires a path")
		}
		return e.doCall(s, st, e.expand(s, rest[0]))

	case "return":
		fr.pc++ // so a re-entrant caller resumes after this instruction if ever re-pushed
		if !e.doReturn(st) {
			st.stopped = true
		}
		return true, nil

	case "stop":
		st.stopped = true
		st.stack = nil
		return true, nil

	case "logon":
		return e.doLogon(s, st, suspend, advance)

	case "newuser":
		return e.doNewuser(s, st, suspend, advance)

	case "online":
		return e.doOnline(s, st, advance)

	case "loginscan":
		return e.doLoginscan(s, st, advance)

	case "sendmail":
		return e.doSendmail(s, st, rest, advance)

	case "sendnetmail":
		return e.doSendnetmail(s, st, rest, advance)

	case "sendfile":
		return e.doSendfile(s, st, rest, suspend, advance)

	case "receivefile":
		return e.doReceivefile(s, st, rest, suspend, advance)

	case "page":
		return e.doPage(s, st, advance)

	case "chat":
		return e.doChat(s, st, suspend, advance)

	case "door":
		return e.doDoor(s, st, rest, suspend, advance)

	case "messagebase", "filebase":
		return e.doBaseCommand(s, st, cmd, rest, advance)
	}

	return false, fmt.Errorf("script: unknown command %q", cmd)
}

func boolStr(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// doPrint writes expanded text to the output pipe, tracking newlines for
// the "More?" pager (spec §4.4).
func (e *Engine) doPrint(s *session.Session, st *runState, text string) (bool, error) {
	s.WriteOutput([]byte(text))
	if !st.moreOn {
		st.top().pc++
		return false, nil
	}
	nl := strings.Count(text, "\n")
	if nl == 0 {
		st.top().pc++
		return false, nil
	}
	st.lineCount += nl
	height := s.Terminal.PageHeight
	if height <= 0 {
		height = 24
	}
	if st.lineCount >= height-1 {
		st.top().pc++
		st.waiting = &morePromptWait{}
		return true, nil
	}
	st.top().pc++
	return false, nil
}

func (e *Engine) doPrompt(s *session.Session, st *runState, rest []string, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	if len(rest) < 2 {
		return false, fmt.Errorf("script: prompt requires var and mode")
	}
	varName := rest[0]
	mode := strings.ToLower(rest[1])
	echo := true
	if len(rest) >= 3 && strings.ToLower(rest[2]) == "noecho" {
		echo = false
	}
	switch mode {
	case "char":
		return suspend(&keyWait{varName: varName, echo: echo})
	case "line":
		return suspend(&lineInputWait{varName: varName, echo: echo})
	}
	return false, fmt.Errorf("script: prompt: unknown mode %q", mode)
}

func (e *Engine) doCall(s *session.Session, st *runState, path string) (bool, error) {
	if len(st.stack) >= maxCallDepth {
		return false, fmt.Errorf("script stack overflow")
	}
	prog, err := e.load(path)
	if err != nil {
		return false, err
	}
	st.top().pc++ // resume here on return
	st.stack = append(st.stack, frame{prog: prog})
	return false, nil
}

func (e *Engine) doOnline(s *session.Session, st *runState, advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || e.Ctx.Users == nil || e.Lines == nil {
		return advance()
	}
	var b strings.Builder
	for _, l := range e.Lines.All() {
		if l.ID() == s.Line.ID() {
			continue
		}
		uid := l.BoundUserID()
		if uid == 0 {
			continue
		}
		name := "unknown"
		if u, ok, _ := e.Ctx.Users.SearchByID(uid); ok {
			name = u.Handle
		}
		fmt.Fprintf(&b, "Line %d: %s\r\n", l.ID(), name)
	}
	s.SetVar("online_report", b.String())
	return advance()
}

// doPage announces a sysop page over the chat room (the §6 UI
// contract's "set chat pager bool" toggle gates whether it rings
// through); it never suspends since paging is fire-and-forget.
func (e *Engine) doPage(s *session.Session, st *runState, advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || e.Ctx.Chat == nil {
		return advance()
	}
	if !e.Ctx.Chat.SysopPaged() {
		s.WriteOutput([]byte("The sysop is not available for chat right now.\r\n"))
		return advance()
	}
	handle := e.lookupVar(s, "handle")
	if handle == "" {
		handle = fmt.Sprintf("Line %d", s.Line.ID())
	}
	e.Ctx.Chat.BroadcastSystem(fmt.Sprintf("*** %s is paging the sysop ***", handle))
	s.WriteOutput([]byte("Paging the sysop...\r\n"))
	return advance()
}

// doChat drops the session into the chat room until the user types
// /quit, suspending on a chatWait that interleaves incoming broadcasts
// with the user's own input line.
func (e *Engine) doChat(s *session.Session, st *runState, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || e.Ctx.Chat == nil {
		return advance()
	}
	handle := e.lookupVar(s, "handle")
	if handle == "" {
		handle = fmt.Sprintf("Line %d", s.Line.ID())
	}
	ch := e.Ctx.Chat.Subscribe(s.Line.ID(), handle)
	e.Ctx.Chat.BroadcastSystem(fmt.Sprintf("*** %s has joined chat ***", handle))
	s.WriteOutput([]byte("Entering chat. Type /quit to leave.\r\n"))
	return suspend(&chatWait{room: e.Ctx.Chat, ch: ch, handle: handle})
}

func (e *Engine) doLoginscan(s *session.Session, st *runState, advance func() (bool, error)) (bool, error) {
	uid := s.Line.BoundUserID()
	if uid == 0 || e.Ctx == nil {
		return advance()
	}
	newMsgs, newFiles := 0, 0
	for _, area := range e.Ctx.MessageDirs {
		area.Iterate(func(id int, m store.Message) bool { newMsgs++; return true })
	}
	for _, area := range e.Ctx.FileDirs {
		area.Iterate(func(id int, f store.FileRecord) bool { newFiles++; return true })
	}
	s.SetVar("loginscan_newmessages", itoa(newMsgs))
	s.SetVar("loginscan_newfiles", itoa(newFiles))
	return advance()
}

func (e *Engine) doSendmail(s *session.Session, st *runState, rest []string, advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || len(rest) < 3 {
		return false, fmt.Errorf("script: sendmail requires user subj body")
	}
	toUser := e.expand(s, rest[0])
	subj := e.expand(s, rest[1])
	body := strings.Join(e.expandAll(s, rest[2:]), " ")
	area, ok := e.Ctx.MessageDirs["local"]
	if !ok {
		return false, fmt.Errorf("script: no local message area configured")
	}
	uid := s.Line.BoundUserID()
	fromName := "SYSOP"
	if uid != 0 {
		if u, ok, _ := e.Ctx.Users.SearchByID(uid); ok {
			fromName = u.Handle
		}
	}
	id, err := area.Add(store.Message{
		AreaTag:  "local",
		FromName: fromName,
		ToName:   toUser,
		Subject:  subj,
		Written:  time.Now(),
	})
	if err != nil {
		return false, err
	}
	f, _, err := area.BeginBody(id)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return false, err
	}
	return advance()
}

func (e *Engine) doSendnetmail(s *session.Session, st *runState, rest []string, advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || len(rest) < 4 {
		return false, fmt.Errorf("script: sendnetmail requires addr name subj body")
	}
	area, ok := e.Ctx.MessageDirs["netmail"]
	if !ok {
		return false, fmt.Errorf("script: no netmail area configured")
	}
	addrStr := e.expand(s, rest[0])
	toName := e.expand(s, rest[1])
	subj := e.expand(s, rest[2])
	body := strings.Join(e.expandAll(s, rest[3:]), " ")

	dest, err := ftn.ParseAddress(addrStr)
	if err != nil {
		return false, err
	}
	uid := s.Line.BoundUserID()
	fromName := "SYSOP"
	if uid != 0 {
		if u, ok, _ := e.Ctx.Users.SearchByID(uid); ok {
			fromName = u.Handle
		}
	}
	id, err := area.Add(store.Message{
		AreaTag:   "netmail",
		FromName:  fromName,
		ToName:    toName,
		Subject:   subj,
		Origin:    e.Ctx.BoardAddr,
		Dest:      dest,
		Written:   time.Now(),
		IsNetmail: true,
	})
	if err != nil {
		return false, err
	}
	f, _, err := area.BeginBody(id)
	if err != nil {
		return false, err
	}
	defer f.Close()
	if _, err := f.WriteString(body); err != nil {
		return false, err
	}
	return advance()
}

func (e *Engine) doBaseCommand(s *session.Session, st *runState, kind string, rest []string, advance func() (bool, error)) (bool, error) {
	if len(rest) == 0 {
		return false, fmt.Errorf("script: %s requires a sub-command", kind)
	}
	sub := strings.ToLower(rest[0])
	switch kind + "." + sub {
	case "messagebase.select":
		if len(rest) < 2 {
			return false, fmt.Errorf("script: messagebase select requires an area tag")
		}
		s.SetVar("messagebaseareatag", e.expand(s, rest[1]))
	case "filebase.select":
		if len(rest) < 2 {
			return false, fmt.Errorf("script: filebase select requires an area tag")
		}
		s.SetVar("filebaseareatag", e.expand(s, rest[1]))
	default:
		return false, fmt.Errorf("script: unknown %s sub-command %q", kind, sub)
	}
	return advance()
}

