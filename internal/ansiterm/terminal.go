package ansiterm

import (
	"fmt"
	"io"
)

// OutputMode selects how printable bytes are transcoded before hitting
// the wire. Narrowed from the teacher's OutputMode enum, which also
// covered auto-detected line-drawing substitution this spec doesn't use.
type OutputMode int

const (
	OutputUTF8 OutputMode = iota
	OutputCP437
)

// Terminal ties a Grid, Parser and Blinker to one line: every byte the
// script engine writes passes through Feed so the grid mirrors what the
// remote screen shows, and PageHeight/row queries let the script engine
// implement "more?" paging and the DSR-based ANSI auto-detect (spec
// §4.3/§4.4).
type Terminal struct {
	Grid    *Grid
	Parser  *Parser
	Blinker *Blinker

	Mode       OutputMode
	PageHeight int // user's preferred screen height, default 24

	dsrRow, dsrCol int
	dsrPending     bool
}

func New(out io.Writer, onRedraw func(rows []int)) *Terminal {
	g := NewGrid()
	p := NewParser(g)
	t := &Terminal{
		Grid:       g,
		Parser:     p,
		Mode:       OutputUTF8,
		PageHeight: 24,
	}
	p.DSRRequested = func(row, col int) {
		t.dsrRow, t.dsrCol = row, col
		t.dsrPending = true
	}
	t.Blinker = NewBlinker(g, onRedraw)
	return t
}

// Feed tracks output bytes written to the line so the grid model stays
// in sync with what the client terminal displays.
func (t *Terminal) Feed(data []byte) {
	t.Parser.Feed(data)
}

// TakeDSRReport returns the most recent ESC[6n reply coordinates
// requested by the output stream, if any, clearing the pending flag.
func (t *Terminal) TakeDSRReport() (row, col int, ok bool) {
	if !t.dsrPending {
		return 0, 0, false
	}
	t.dsrPending = false
	return t.dsrRow, t.dsrCol, true
}

// CursorPositionReport formats the reply a client sends for ESC[6n, used
// by the session's ANSI auto-detect against a loopback or a genuine
// client echo.
func CursorPositionReport(row, col int) []byte {
	return []byte(fmt.Sprintf("\x1b[%d;%dR", row, col))
}

// EncodeOutput transcodes printable bytes per the terminal's output mode
// before they are queued to the line's pipe, per spec §4.2/§4.3.
func (t *Terminal) EncodeOutput(w io.Writer, data []byte) error {
	if t.Mode == OutputUTF8 {
		_, err := w.Write(data)
		return err
	}
	cw := NewCP437Writer(w)
	_, err := cw.Write(data)
	return err
}

// Cls clears the grid to match a `cls` script command's effect on the
// remote screen.
func (t *Terminal) Cls() {
	t.Grid.mu.Lock()
	t.Grid.clearAll()
	t.Grid.mu.Unlock()
}
