// Package ansiterm implements the per-line ANSI terminal model (C3): an
// 80x25 cell grid, a CSI/SGR escape parser, a 2Hz blink timer, and CP437
// output encoding. Adapted from the teacher's internal/terminal and
// internal/ansi packages (parser.go/renderer.go/writer.go/charset.go,
// ansi.go) and internal/terminalio's selective CP437 writer, stripped of
// the ssh.Session coupling and the SAUCE/door-art rendering surface that
// belongs to the menu system the teacher used and this spec drops.
package ansiterm

import "sync"

const (
	Cols = 80
	Rows = 25
)

// Attr is the 16-bit attribute word: bits 0-3 foreground (bold sets the
// intensity bit 3), bits 4-6 background, bit 7 unused, bit 8 flash.
type Attr uint16

const (
	flashBit Attr = 1 << 8
)

func MakeAttr(fg, bg int, flash bool) Attr {
	a := Attr(fg&0x0F) | Attr((bg&0x07)<<4)
	if flash {
		a |= flashBit
	}
	return a
}

func (a Attr) Foreground() int { return int(a & 0x0F) }
func (a Attr) Background() int { return int((a >> 4) & 0x07) }
func (a Attr) Flash() bool     { return a&flashBit != 0 }

const DefaultAttr = Attr(7) // white on black, no flash

// Cell is one grid position: a codepoint and its attribute word.
type Cell struct {
	Ch   rune
	Attr Attr
}

// Grid is the 80x25 cell buffer plus cursor and current-attribute state.
// Row-dirty tracking lets the renderer redraw only changed rows instead
// of the whole screen, per the blink timer's row-scoped redraw rule.
type Grid struct {
	mu       sync.Mutex
	cells    [Rows][Cols]Cell
	cursorX  int
	cursorY  int
	saveX    int
	saveY    int
	cur      Attr
	dirty    [Rows]bool
	blinkOn  bool
}

func NewGrid() *Grid {
	g := &Grid{cur: DefaultAttr}
	g.clearAll()
	return g
}

func (g *Grid) clearAll() {
	for y := 0; y < Rows; y++ {
		for x := 0; x < Cols; x++ {
			g.cells[y][x] = Cell{Ch: ' ', Attr: g.cur}
		}
		g.dirty[y] = true
	}
	g.cursorX, g.cursorY = 0, 0
}

func (g *Grid) markDirty(y int) {
	if y >= 0 && y < Rows {
		g.dirty[y] = true
	}
}

// DirtyRows returns and clears the set of rows changed since the last call.
func (g *Grid) DirtyRows() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	var rows []int
	for y := 0; y < Rows; y++ {
		if g.dirty[y] {
			rows = append(rows, y)
			g.dirty[y] = false
		}
	}
	return rows
}

func (g *Grid) Row(y int) [Cols]Cell {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cells[y]
}

func (g *Grid) CursorPos() (row, col int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cursorY, g.cursorX
}

// putChar writes one printable rune at the cursor and advances it,
// wrapping and scrolling as needed. Must be called with g.mu held.
func (g *Grid) putChar(ch rune) {
	g.cells[g.cursorY][g.cursorX] = Cell{Ch: ch, Attr: g.cur}
	g.markDirty(g.cursorY)
	g.cursorX++
	if g.cursorX >= Cols {
		g.cursorX = 0
		g.newline()
	}
}

func (g *Grid) newline() {
	g.cursorY++
	if g.cursorY >= Rows {
		g.scrollUp(1)
		g.cursorY = Rows - 1
	}
}

func (g *Grid) scrollUp(n int) {
	for i := 0; i < n; i++ {
		for y := 0; y < Rows-1; y++ {
			g.cells[y] = g.cells[y+1]
			g.markDirty(y)
		}
		for x := 0; x < Cols; x++ {
			g.cells[Rows-1][x] = Cell{Ch: ' ', Attr: g.cur}
		}
		g.markDirty(Rows - 1)
	}
}

func (g *Grid) scrollDown(n int) {
	for i := 0; i < n; i++ {
		for y := Rows - 1; y > 0; y-- {
			g.cells[y] = g.cells[y-1]
			g.markDirty(y)
		}
		for x := 0; x < Cols; x++ {
			g.cells[0][x] = Cell{Ch: ' ', Attr: g.cur}
		}
		g.markDirty(0)
	}
}

func clampRow(y int) int {
	if y < 0 {
		return 0
	}
	if y >= Rows {
		return Rows - 1
	}
	return y
}

func clampCol(x int) int {
	if x < 0 {
		return 0
	}
	if x >= Cols {
		return Cols - 1
	}
	return x
}
