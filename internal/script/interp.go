package script

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/session"
)

// maxMacroDepth bounds %{...} recursive expansion (spec §4.4: "with a
// small recursion bound to detect loops").
const maxMacroDepth = 8

// maxCallDepth is the script call-stack size (spec §4.4: "a call stack
// of >= 8 frames").
const maxCallDepth = 8

// frame is one activation of the `script` command's call stack.
type frame struct {
	prog *Program
	pc   int
	loop []loopFrame
}

type loopFrame struct {
	kind         opKind // opFor or opWhile
	headerIdx    int
	continueIdx  int
	breakIdx     int
}

// waiter is resumed on every Step until it reports done.
type waiter interface {
	poll(s *session.Session, st *runState) (done bool, err error)
}

// runState is the per-line script execution state, created by Start and
// discarded by Forget.
type runState struct {
	stack    []frame
	waiting  waiter
	moreOn   bool
	moreOverridden bool
	lineCount int
	stopped  bool
}

func (st *runState) top() *frame { return &st.stack[len(st.stack)-1] }

// Engine compiles and runs scripts against a Session, implementing
// session.Runner so the C3 scheduler can drive it.
type Engine struct {
	ScriptDir string
	Ctx       *Context
	Lines     *line.Registry

	cache map[string]*Program
	state map[*session.Session]*runState
}

func NewEngine(scriptDir string, ctx *Context, lines *line.Registry) *Engine {
	return &Engine{
		ScriptDir: scriptDir,
		Ctx:       ctx,
		Lines:     lines,
		cache:     make(map[string]*Program),
		state:     make(map[*session.Session]*runState),
	}
}

func (e *Engine) load(path string) (*Program, error) {
	if p, ok := e.cache[path]; ok {
		return p, nil
	}
	full := filepath.Join(e.ScriptDir, path)
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("script: read %s: %w", path, err)
	}
	prog, err := Compile(path, string(data))
	if err != nil {
		return nil, err
	}
	e.cache[path] = prog
	return prog, nil
}

// Start loads and begins running a top-level script for a newly bound
// session (e.g. the logon script attached to a line).
func (e *Engine) Start(s *session.Session, path string) error {
	prog, err := e.load(path)
	if err != nil {
		return err
	}
	e.state[s] = &runState{
		stack:  []frame{{prog: prog}},
		moreOn: true,
	}
	return nil
}

// Step implements session.Runner: it runs instructions until the
// session suspends on a waiter, its call stack empties, or it executes
// `stop`.
func (e *Engine) Step(s *session.Session) error {
	st, ok := e.state[s]
	if !ok || st.stopped {
		return nil
	}

	for {
		if st.waiting != nil {
			done, err := st.waiting.poll(s, st)
			if err != nil {
				st.stopped = true
				return err
			}
			if !done {
				return nil
			}
			st.waiting = nil
		}

		if len(st.stack) == 0 {
			st.stopped = true
			return nil
		}

		fr := st.top()
		if fr.pc >= len(fr.prog.instr) {
			// EOF acts as return (spec §4.4).
			if !e.doReturn(st) {
				st.stopped = true
				return nil
			}
			continue
		}

		in := fr.prog.instr[fr.pc]
		halt, err := e.exec(s, st, in)
		if err != nil {
			// Spec §7 Script policy: print a bracketed error token,
			// terminate the current script, return to the previous
			// frame if any; if the top frame errors, disconnect.
			s.WriteOutput([]byte(fmt.Sprintf("[%v]\r\n", err)))
			if !e.doReturn(st) {
				st.stopped = true
				return nil
			}
			continue
		}
		if halt {
			return nil
		}
	}
}

// Done reports whether a session's top-level script has exited (by
// `stop`, running off the end of the call stack, or a script error) —
// the signal the caller uses to disconnect the line (spec §7 Script
// policy: "if the top frame errors, disconnect").
func (e *Engine) Done(s *session.Session) bool {
	st, ok := e.state[s]
	return !ok || st.stopped
}

// Forget discards a session's script state, called once the caller has
// acted on Done and is tearing the session down.
func (e *Engine) Forget(s *session.Session) {
	delete(e.state, s)
}

func (e *Engine) expand(s *session.Session, tok string) string {
	out := tok
	for i := 0; i < maxMacroDepth; i++ {
		start := strings.Index(out, "%{")
		if start < 0 {
			return out
		}
		end := strings.Index(out[start:], "}")
		if end < 0 {
			return out
		}
		name := out[start+2 : start+end]
		val := e.lookupVar(s, name)
		out = out[:start] + val + out[start+end+1:]
	}
	return out
}

func (e *Engine) lookupVar(s *session.Session, name string) string {
	if v, ok := e.macro(s, name); ok {
		return v
	}
	return s.Var(name)
}

func (e *Engine) macro(s *session.Session, name string) (string, bool) {
	now := time.Now()
	switch name {
	case "line":
		return strconv.Itoa(s.Line.ID()), true
	case "hour":
		return strconv.Itoa(now.Hour()), true
	case "minute":
		return strconv.Itoa(now.Minute()), true
	case "dayofweek":
		return strconv.Itoa(int(now.Weekday())), true
	case "day":
		return strconv.Itoa(now.Day()), true
	case "month":
		return strconv.Itoa(int(now.Month())), true
	case "year":
		return strconv.Itoa(now.Year()), true
	case "ansi":
		if v := s.Var("ansi"); v != "" {
			return v, true
		}
		return "1", true
	}
	if e.Ctx == nil || e.Ctx.Users == nil {
		return "", false
	}
	uid := s.Line.BoundUserID()
	switch name {
	case "userid":
		return strconv.Itoa(uid), true
	case "registered":
		if uid == 0 {
			return "0", true
		}
		return "1", true
	case "sysop":
		u, ok, _ := e.Ctx.Users.SearchByID(uid)
		if ok && u.AccessLevel >= e.Ctx.SysopLevel {
			return "1", true
		}
		return "0", true
	case "accesslevel":
		u, ok, _ := e.Ctx.Users.SearchByID(uid)
		if !ok {
			return "0", true
		}
		return strconv.Itoa(u.AccessLevel), true
	case "keys":
		u, ok, _ := e.Ctx.Users.SearchByID(uid)
		if !ok {
			return "", true
		}
		return u.Flags, true
	case "messagebaseareaname", "filebaseareaname", "messagebasename", "filebasename",
		"messagebaseid", "filebaseid", "messagebaseareaid", "filebaseareaid":
		return s.Var(name), true
	}
	return "", false
}

func (e *Engine) expandAll(s *session.Session, toks []string) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = e.expand(s, t)
	}
	return out
}
