package ansiterm

import "strconv"

type parserState int

const (
	stateGround parserState = iota
	stateEscape
	stateCSI
)

// Parser drives a Grid from a raw output byte stream: control bytes
// (BS/TAB/LF/VT/FF/CR) are applied directly, CSI sequences are
// accumulated and dispatched once their final byte arrives. Adapted from
// the teacher's internal/terminal/parser.go state machine, narrowed to
// the CSI subset this spec names instead of the teacher's full SAUCE/
// line-drawing/pipe-code surface.
type Parser struct {
	grid  *Grid
	state parserState
	csi   []byte

	// DSRRequested is set when the grid emits ESC[6n so the caller can
	// reply with the cursor-position report on the input side.
	DSRRequested func(row, col int)
}

func NewParser(g *Grid) *Parser {
	return &Parser{grid: g, state: stateGround}
}

// Feed processes one chunk of output bytes against the grid.
func (p *Parser) Feed(data []byte) {
	for _, b := range data {
		p.feedByte(b)
	}
}

func (p *Parser) feedByte(b byte) {
	switch p.state {
	case stateGround:
		p.feedGround(b)
	case stateEscape:
		if b == '[' {
			p.state = stateCSI
			p.csi = p.csi[:0]
			return
		}
		// Unsupported ESC sequence (e.g. charset select) - drop it.
		p.state = stateGround
	case stateCSI:
		if b >= 0x40 && b <= 0x7E {
			p.dispatchCSI(b)
			p.state = stateGround
			return
		}
		p.csi = append(p.csi, b)
	}
}

func (p *Parser) feedGround(b byte) {
	switch b {
	case 0x1b:
		p.state = stateEscape
		return
	case '\b':
		p.grid.mu.Lock()
		if p.grid.cursorX > 0 {
			p.grid.cursorX--
		}
		p.grid.mu.Unlock()
		return
	case '\t':
		p.grid.mu.Lock()
		p.grid.cursorX = ((p.grid.cursorX / 8) + 1) * 8
		if p.grid.cursorX >= Cols {
			p.grid.cursorX = Cols - 1
		}
		p.grid.mu.Unlock()
		return
	case '\n', '\v':
		p.grid.mu.Lock()
		p.grid.newline()
		p.grid.mu.Unlock()
		return
	case '\f':
		p.grid.mu.Lock()
		p.grid.clearAll()
		p.grid.mu.Unlock()
		return
	case '\r':
		p.grid.mu.Lock()
		p.grid.cursorX = 0
		p.grid.mu.Unlock()
		return
	}
	if b < 0x20 {
		return
	}
	p.grid.mu.Lock()
	p.grid.putChar(rune(b))
	p.grid.mu.Unlock()
}

func csiParams(raw []byte) []int {
	var out []int
	cur := ""
	flush := func() {
		if cur == "" {
			out = append(out, -1)
		} else if n, err := strconv.Atoi(cur); err == nil {
			out = append(out, n)
		} else {
			out = append(out, -1)
		}
		cur = ""
	}
	for _, b := range raw {
		if b == ';' {
			flush()
			continue
		}
		cur += string(b)
	}
	flush()
	return out
}

func param(params []int, i, def int) int {
	if i >= len(params) || params[i] < 0 {
		return def
	}
	return params[i]
}

func (p *Parser) dispatchCSI(final byte) {
	params := csiParams(p.csi)
	g := p.grid

	switch final {
	case 'A': // CUU
		g.mu.Lock()
		g.cursorY = clampRow(g.cursorY - param(params, 0, 1))
		g.mu.Unlock()
	case 'B': // CUD
		g.mu.Lock()
		g.cursorY = clampRow(g.cursorY + param(params, 0, 1))
		g.mu.Unlock()
	case 'C': // CUF
		g.mu.Lock()
		g.cursorX = clampCol(g.cursorX + param(params, 0, 1))
		g.mu.Unlock()
	case 'D': // CUB
		g.mu.Lock()
		g.cursorX = clampCol(g.cursorX - param(params, 0, 1))
		g.mu.Unlock()
	case 'H', 'f': // CUP
		g.mu.Lock()
		g.cursorY = clampRow(param(params, 0, 1) - 1)
		g.cursorX = clampCol(param(params, 1, 1) - 1)
		g.mu.Unlock()
	case 'J': // ED
		p.eraseDisplay(param(params, 0, 0))
	case 'K': // EL
		p.eraseLine(param(params, 0, 0))
	case 'L': // IL
		g.mu.Lock()
		g.scrollDown(param(params, 0, 1))
		g.mu.Unlock()
	case 'M': // DL
		g.mu.Lock()
		g.scrollUp(param(params, 0, 1))
		g.mu.Unlock()
	case 'm': // SGR
		p.sgr(params)
	case 's':
		g.mu.Lock()
		g.saveX, g.saveY = g.cursorX, g.cursorY
		g.mu.Unlock()
	case 'u':
		g.mu.Lock()
		g.cursorX, g.cursorY = g.saveX, g.saveY
		g.mu.Unlock()
	case 'n': // DSR
		if param(params, 0, 0) == 6 && p.DSRRequested != nil {
			row, col := g.CursorPos()
			p.DSRRequested(row+1, col+1)
		}
	}
}

func (p *Parser) eraseDisplay(mode int) {
	g := p.grid
	g.mu.Lock()
	defer g.mu.Unlock()
	switch mode {
	case 0: // cursor to end
		p.clearRange(g.cursorY, g.cursorX, Rows-1, Cols-1)
	case 1: // start to cursor
		p.clearRange(0, 0, g.cursorY, g.cursorX)
	case 2, 3: // whole screen
		g.clearAll()
	}
}

func (p *Parser) eraseLine(mode int) {
	g := p.grid
	g.mu.Lock()
	defer g.mu.Unlock()
	switch mode {
	case 0:
		p.clearRange(g.cursorY, g.cursorX, g.cursorY, Cols-1)
	case 1:
		p.clearRange(g.cursorY, 0, g.cursorY, g.cursorX)
	case 2:
		p.clearRange(g.cursorY, 0, g.cursorY, Cols-1)
	}
}

// clearRange fills cells from (y0,x0) to (y1,x1) inclusive, row-major.
// Must be called with g.mu held.
func (p *Parser) clearRange(y0, x0, y1, x1 int) {
	g := p.grid
	for y := y0; y <= y1; y++ {
		startX, endX := 0, Cols-1
		if y == y0 {
			startX = x0
		}
		if y == y1 {
			endX = x1
		}
		for x := startX; x <= endX; x++ {
			g.cells[y][x] = Cell{Ch: ' ', Attr: g.cur}
		}
		g.markDirty(y)
	}
}

func (p *Parser) sgr(params []int) {
	g := p.grid
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(params) == 0 || (len(params) == 1 && params[0] <= 0) {
		g.cur = DefaultAttr
		return
	}

	fg, bg, flash := g.cur.Foreground(), g.cur.Background(), g.cur.Flash()
	for _, n := range params {
		switch {
		case n <= 0:
			fg, bg, flash = DefaultAttr.Foreground(), DefaultAttr.Background(), false
		case n == 1:
			fg |= 0x08 // bold -> high intensity
		case n == 5:
			flash = true
		case n == 25:
			flash = false
		case n == 7: // reverse
			fg, bg = bg, fg
		case n >= 30 && n <= 37:
			fg = (fg & 0x08) | (n - 30)
		case n == 39:
			fg = (fg & 0x08) | (DefaultAttr.Foreground() & 0x07)
		case n >= 40 && n <= 47:
			bg = (n - 40) & 0x07
		case n == 49:
			bg = DefaultAttr.Background()
		case n >= 90 && n <= 97:
			fg = 0x08 | (n - 90)
		}
	}
	g.cur = MakeAttr(fg, bg, flash)
}
