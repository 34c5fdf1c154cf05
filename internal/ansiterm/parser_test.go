package ansiterm

import "testing"

func TestCursorMovement(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("\x1b[10;20H"))
	row, col := g.CursorPos()
	if row != 9 || col != 19 {
		t.Fatalf("cursor = (%d,%d), want (9,19)", row, col)
	}
	p.Feed([]byte("\x1b[2A\x1b[3C"))
	row, col = g.CursorPos()
	if row != 7 || col != 22 {
		t.Fatalf("cursor after relative move = (%d,%d), want (7,22)", row, col)
	}
}

func TestPrintAndWrap(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("hi"))
	row := g.Row(0)
	if row[0].Ch != 'h' || row[1].Ch != 'i' {
		t.Fatalf("row 0 = %q%q, want hi", row[0].Ch, row[1].Ch)
	}

	long := make([]byte, Cols+1)
	for i := range long {
		long[i] = 'x'
	}
	p.Feed(long)
	r, c := g.CursorPos()
	if r != 1 || c != 3 {
		t.Fatalf("cursor after wrap = (%d,%d), want (1,3)", r, c)
	}
}

func TestSGRResetBothForms(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("\x1b[31mX\x1b[mY\x1b[32mZ\x1b[0mW"))
	row := g.Row(0)
	if row[0].Attr.Foreground() != 1 {
		t.Fatalf("X fg = %d, want red(1)", row[0].Attr.Foreground())
	}
	if row[1].Attr != DefaultAttr {
		t.Fatalf("Y attr = %v, want default after bare ESC[m", row[1].Attr)
	}
	if row[3].Attr != DefaultAttr {
		t.Fatalf("W attr = %v, want default after ESC[0m", row[3].Attr)
	}
}

func TestEraseDisplay(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("hello\x1b[1;1H\x1b[2J"))
	row := g.Row(0)
	if row[0].Ch != ' ' {
		t.Fatalf("cell not cleared by ESC[2J")
	}
}

func TestDSRReport(t *testing.T) {
	var got [2]int
	g := NewGrid()
	p := NewParser(g)
	p.DSRRequested = func(row, col int) { got[0], got[1] = row, col }
	p.Feed([]byte("\x1b[5;10H\x1b[6n"))
	if got[0] != 5 || got[1] != 10 {
		t.Fatalf("DSR report = %v, want (5,10)", got)
	}
}

func TestScrollOnOverflow(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("\x1b[25;1Hlast"))
	p.Feed([]byte("\n"))
	row := g.Row(Rows - 1)
	if row[0].Ch != ' ' {
		t.Fatalf("row 24 not cleared after scroll")
	}
}

func TestBlinkTogglesFlashRows(t *testing.T) {
	g := NewGrid()
	p := NewParser(g)
	p.Feed([]byte("\x1b[5mA"))
	g.DirtyRows()

	var tickedRows []int
	b := NewBlinker(g, func(rows []int) { tickedRows = rows })
	b.tick()
	if len(tickedRows) != 1 || tickedRows[0] != 0 {
		t.Fatalf("blink tick rows = %v, want [0]", tickedRows)
	}
}
