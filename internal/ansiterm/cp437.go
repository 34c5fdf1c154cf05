package ansiterm

import (
	"bytes"
	"io"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// cp437State mirrors the teacher's internal/terminalio.SelectiveCP437Writer
// state machine: printable text is transcoded to CP437, while CSI
// sequences pass through unmodified so colour codes survive the encoder.
type cp437State int

const (
	cp437Ground cp437State = iota
	cp437Escape
	cp437CSI
)

// CP437Writer wraps an io.Writer, transcoding UTF-8 text to CP437 for
// legacy ANSI/SyncTERM clients while leaving escape sequences untouched.
type CP437Writer struct {
	w       io.Writer
	encoder transform.Transformer
	state   cp437State
	buf     bytes.Buffer
}

func NewCP437Writer(w io.Writer) *CP437Writer {
	return &CP437Writer{w: w, encoder: charmap.CodePage437.NewEncoder()}
}

func (c *CP437Writer) Write(p []byte) (int, error) {
	for _, b := range p {
		switch c.state {
		case cp437Ground:
			if b == 0x1b {
				if err := c.flushText(); err != nil {
					return 0, err
				}
				c.state = cp437Escape
				c.buf.WriteByte(b)
				continue
			}
			c.buf.WriteByte(b)
		case cp437Escape:
			c.buf.WriteByte(b)
			if b == '[' {
				c.state = cp437CSI
			} else {
				c.state = cp437Ground
				if _, err := c.w.Write(c.buf.Bytes()); err != nil {
					return 0, err
				}
				c.buf.Reset()
			}
		case cp437CSI:
			c.buf.WriteByte(b)
			if b >= 0x40 && b <= 0x7E {
				c.state = cp437Ground
				if _, err := c.w.Write(c.buf.Bytes()); err != nil {
					return 0, err
				}
				c.buf.Reset()
			}
		}
	}
	if c.state == cp437Ground {
		if err := c.flushText(); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

func (c *CP437Writer) flushText() error {
	if c.buf.Len() == 0 {
		return nil
	}
	encoded, _, err := transform.Bytes(c.encoder, c.buf.Bytes())
	c.buf.Reset()
	if err != nil {
		return err
	}
	_, err = c.w.Write(encoded)
	return err
}
