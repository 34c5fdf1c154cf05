package script

import (
	"fmt"

	"github.com/robwilkins/ftnbbs/internal/session"
)

// exec runs one compiled instruction. halt=true means Step should
// return to the scheduler (a builtin just suspended).
func (e *Engine) exec(s *session.Session, st *runState, in instr) (halt bool, err error) {
	fr := st.top()

	switch in.kind {
	case opLabel:
		fr.pc++
		return false, nil

	case opIf:
		cond, err := evalCondition(in.args, func(t string) string { return e.expand(s, t) })
		if err != nil {
			return false, err
		}
		if cond {
			fr.pc++
		} else {
			fr.pc = in.jumpElse + 1
		}
		return false, nil

	case opElse:
		fr.pc = in.jumpEnd + 1
		return false, nil

	case opEndIf:
		fr.pc++
		return false, nil

	case opFor:
		if err := e.enterFor(s, st, in); err != nil {
			return false, err
		}
		return false, nil

	case opEndFor:
		e.stepFor(s, st, in)
		return false, nil

	case opWhile:
		cond, err := evalCondition(in.args, func(t string) string { return e.expand(s, t) })
		if err != nil {
			return false, err
		}
		if cond {
			fr.loop = append(fr.loop, loopFrame{
				kind: opWhile, headerIdx: fr.pc, breakIdx: in.jumpEnd,
			})
			fr.pc++
		} else {
			fr.pc = in.jumpEnd
		}
		return false, nil

	case opEndWhile:
		if n := len(fr.loop); n > 0 {
			fr.loop = fr.loop[:n-1]
		}
		fr.pc = in.jumpBack
		return false, nil

	case opBreak:
		if n := len(fr.loop); n > 0 {
			top := fr.loop[n-1]
			fr.loop = fr.loop[:n-1]
			fr.pc = top.breakIdx
			return false, nil
		}
		return false, fmt.Errorf("script: break outside loop")

	case opContinue:
		if n := len(fr.loop); n > 0 {
			top := fr.loop[n-1]
			if top.kind == opFor {
				fr.pc = top.continueIdx
			} else {
				// while's header re-pushes a loop frame on every
				// iteration (see opWhile), so pop the stale one here.
				fr.loop = fr.loop[:n-1]
				fr.pc = top.headerIdx
			}
			return false, nil
		}
		return false, fmt.Errorf("script: continue outside loop")

	case opGoto:
		idx, ok := fr.prog.label[in.label]
		if !ok {
			return false, fmt.Errorf("script: %s: undefined label %q", fr.prog.Path, in.label)
		}
		fr.pc = idx
		return false, nil

	case opCommand:
		return e.dispatch(s, st, in.args)
	}
	fr.pc++
	return false, nil
}

// enterFor initialises the loop variable and pushes a loop frame; the
// variable is only (re)initialised to its start value on fresh entry,
// not on every continue/loop-back (enterFor only runs for the opFor
// instruction itself, which is skipped on continue/loop-back via
// opEndFor jumping straight back into the body).
func (e *Engine) enterFor(s *session.Session, st *runState, in instr) error {
	fr := st.top()
	// "for v = a to b [step s]"
	args := in.args
	if len(args) < 4 || args[1] != "=" {
		return fmt.Errorf("script: malformed for statement %q", args)
	}
	varName := args[0]
	from := e.expand(s, args[2])
	var to, step string
	step = "1"
	// args: v = a to b [step s]
	i := 3
	if i < len(args) && args[i] == "to" {
		i++
	}
	if i < len(args) {
		to = e.expand(s, args[i])
		i++
	}
	if i+1 < len(args) && args[i] == "step" {
		step = e.expand(s, args[i+1])
	}

	fromN, err1 := parseIntDefault(from, 0)
	toN, err2 := parseIntDefault(to, 0)
	stepN, err3 := parseIntDefault(step, 1)
	if err1 != nil || err2 != nil || err3 != nil {
		return fmt.Errorf("script: non-numeric for-loop bound")
	}

	s.SetVar(varName, itoa(fromN))

	inBounds := (stepN >= 0 && fromN <= toN) || (stepN < 0 && fromN >= toN)
	if !inBounds {
		fr.pc = in.jumpEnd
		return nil
	}

	fr.loop = append(fr.loop, loopFrame{
		kind:        opFor,
		headerIdx:   fr.pc,
		continueIdx: fr.pc, // endfor index; patched below once known
		breakIdx:    in.jumpEnd,
	})
	// continueIdx must point at the matching endfor instruction, which is
	// jumpEnd-1 by construction (see Compile).
	fr.loop[len(fr.loop)-1].continueIdx = in.jumpEnd - 1
	fr.pc++

	// Stash bound/step on hidden session vars so opEndFor's loopBack can
	// re-evaluate them without re-parsing the header text.
	s.SetVar("__for_"+varName+"_to", itoa(toN))
	s.SetVar("__for_"+varName+"_step", itoa(stepN))
	s.SetVar("__for_"+varName+"_name", varName)
	return nil
}

// stepFor implements the endfor instruction: increment the loop
// variable and either jump back into the body or pop the loop and fall
// through to the statement after endfor.
func (e *Engine) stepFor(s *session.Session, st *runState, in instr) {
	fr := st.top()
	if len(fr.loop) == 0 {
		fr.pc++
		return
	}
	top := fr.loop[len(fr.loop)-1]

	name := s.Var("__for_" + varNameAtHeader(fr, top.headerIdx) + "_name")
	toN, _ := atoiSigned(s.Var("__for_" + name + "_to"))
	stepN, _ := atoiSigned(s.Var("__for_" + name + "_step"))
	curN, _ := atoiSigned(s.Var(name))
	curN += stepN
	s.SetVar(name, itoa(curN))

	inBounds := (stepN >= 0 && curN <= toN) || (stepN < 0 && curN >= toN)
	if inBounds {
		fr.pc = top.headerIdx + 1
		return
	}
	fr.loop = fr.loop[:len(fr.loop)-1]
	fr.pc = fr.prog.instr[top.headerIdx].jumpEnd
}

// varNameAtHeader recovers the loop variable name for a for-header at
// idx; the header instruction's first arg is always the variable name.
func varNameAtHeader(fr *frame, idx int) string {
	if idx < 0 || idx >= len(fr.prog.instr) {
		return ""
	}
	args := fr.prog.instr[idx].args
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func parseIntDefault(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := atoiSigned(s)
	if err != nil {
		return def, err
	}
	return n, nil
}

func atoiSigned(s string) (int, error) {
	neg := false
	if len(s) > 0 && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" {
		return 0, fmt.Errorf("script: empty integer")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("script: invalid integer %q", s)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	if neg {
		b = append([]byte{'-'}, b...)
	}
	return string(b)
}

// doReturn pops the call stack, per "EOF in a called script acts as
// return" and the `return` command. Reports whether execution should
// continue in the caller's frame.
func (e *Engine) doReturn(st *runState) bool {
	if len(st.stack) == 0 {
		return false
	}
	st.stack = st.stack[:len(st.stack)-1]
	return len(st.stack) > 0
}
