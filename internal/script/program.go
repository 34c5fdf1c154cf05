package script

import (
	"fmt"
	"strings"
)

// opKind tags each compiled instruction.
type opKind int

const (
	opCommand opKind = iota
	opLabel
	opIf
	opElse
	opEndIf
	opFor
	opEndFor
	opWhile
	opEndWhile
	opBreak
	opContinue
	opGoto
)

// instr is one compiled line of script source.
type instr struct {
	kind opKind
	args []string // raw tokens after the keyword, macro-unexpanded

	// Block-structure jump targets, resolved at compile time.
	jumpElse int // opIf: index of matching else/endif
	jumpEnd  int // opIf/opElse: index of the matching end if; opFor/opWhile: index one past the matching end
	jumpBack int // opEndFor/opEndWhile: index of the opFor/opWhile header
	label    string
}

// Program is a compiled script: a flat instruction list plus a label
// table, ready to run under an *Engine.
type Program struct {
	Path  string
	instr []instr
	label map[string]int
}

const maxNestDepth = 16

// Compile parses script source into a Program (spec §4.4's lexical form
// and control-flow grammar).
func Compile(path, src string) (*Program, error) {
	src = stripComments(src)
	lines := strings.Split(src, "\n")

	p := &Program{Path: path, label: make(map[string]int)}

	type pending struct {
		kind opKind // opIf or opFor or opWhile
		idx  int
	}
	var stack []pending

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			name := strings.TrimSuffix(line, ":")
			p.label[name] = len(p.instr)
			p.instr = append(p.instr, instr{kind: opLabel, label: name})
			continue
		}

		toks := tokenize(line)
		if len(toks) == 0 {
			continue
		}
		kw := strings.ToLower(toks[0])
		rest := toks[1:]

		switch {
		case kw == "if":
			// "if cond then"
			cond := rest
			if len(cond) > 0 && strings.ToLower(cond[len(cond)-1]) == "then" {
				cond = cond[:len(cond)-1]
			}
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opIf, args: cond})
			stack = append(stack, pending{opIf, idx})
			if len(stack) > maxNestDepth {
				return nil, fmt.Errorf("script: %s: block nesting exceeds %d levels", path, maxNestDepth)
			}

		case kw == "else":
			if len(stack) == 0 || stack[len(stack)-1].kind != opIf {
				return nil, fmt.Errorf("script: %s: else without matching if", path)
			}
			top := stack[len(stack)-1]
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opElse})
			p.instr[top.idx].jumpElse = idx
			stack[len(stack)-1].idx = idx // else becomes the new "open" marker for endif patch

		case kw == "end" && len(rest) == 1 && strings.ToLower(rest[0]) == "if":
			if len(stack) == 0 {
				return nil, fmt.Errorf("script: %s: end if without matching if", path)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opEndIf})
			if p.instr[top.idx].kind == opIf {
				p.instr[top.idx].jumpElse = idx
			}
			p.instr[top.idx].jumpEnd = idx

		case kw == "for":
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opFor, args: rest})
			stack = append(stack, pending{opFor, idx})

		case kw == "endfor":
			if len(stack) == 0 || stack[len(stack)-1].kind != opFor {
				return nil, fmt.Errorf("script: %s: endfor without matching for", path)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opEndFor, jumpBack: top.idx})
			p.instr[top.idx].jumpEnd = idx + 1

		case kw == "while":
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opWhile, args: rest})
			stack = append(stack, pending{opWhile, idx})

		case kw == "endwhile":
			if len(stack) == 0 || stack[len(stack)-1].kind != opWhile {
				return nil, fmt.Errorf("script: %s: endwhile without matching while", path)
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			idx := len(p.instr)
			p.instr = append(p.instr, instr{kind: opEndWhile, jumpBack: top.idx})
			p.instr[top.idx].jumpEnd = idx + 1

		case kw == "break":
			p.instr = append(p.instr, instr{kind: opBreak})

		case kw == "continue":
			p.instr = append(p.instr, instr{kind: opContinue})

		case kw == "goto":
			p.instr = append(p.instr, instr{kind: opGoto, label: strings.Join(rest, " ")})

		default:
			p.instr = append(p.instr, instr{kind: opCommand, args: toks})
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("script: %s: unclosed block(s) at end of file", path)
	}
	return p, nil
}
