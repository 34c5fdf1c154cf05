// Package serial implements the serial line transport (C2): a
// BlockDriver abstraction over a physical or virtual serial device,
// DCD-driven connect/disconnect, and pump loops feeding a line's pipe
// pair. No example in the retrieved corpus talks to a serial port, so
// this is built directly from spec.md's description rather than adapted
// from a teacher file; it uses only os/io (no ioctl-level flow control
// library exists in the corpus to reach for) — see DESIGN.md.
package serial

import (
	"os"
	"time"

	"github.com/robwilkins/ftnbbs/internal/events"
	"github.com/robwilkins/ftnbbs/internal/line"
	"github.com/robwilkins/ftnbbs/internal/logging"
	"github.com/robwilkins/ftnbbs/internal/pipe"
)

// BlockDriver is the per-line abstraction over a serial device: init the
// port, read DCD, and move bytes/blocks in and out.
type BlockDriver interface {
	Init(baud int) error
	CarrierDetect() (bool, error)
	ReadByte() (byte, bool, error) // ok=false when nothing pending
	WriteBlock(p []byte) (int, error)
	Close() error
}

// FileDriver implements BlockDriver over a device file (e.g.
// /dev/ttyUSB0), the common case on a Unix host; baud/word-format/flow
// configuration is assumed to be handled out of band (stty, a udev rule,
// or a USB-serial adapter's fixed rate) since no corpus library exposes
// termios controls.
type FileDriver struct {
	Path string
	f    *os.File
}

func (d *FileDriver) Init(baud int) error {
	f, err := os.OpenFile(d.Path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	d.f = f
	return nil
}

// CarrierDetect reports true once the device is open; without termios
// access this driver cannot read the DCD line directly, so it treats
// "port open and readable" as carrier-present, which virtual serial
// devices (socat, a modem emulator) satisfy.
func (d *FileDriver) CarrierDetect() (bool, error) {
	return d.f != nil, nil
}

func (d *FileDriver) ReadByte() (byte, bool, error) {
	buf := make([]byte, 1)
	d.f.SetReadDeadline(time.Now().Add(10 * time.Millisecond))
	n, err := d.f.Read(buf)
	if n == 1 {
		return buf[0], true, nil
	}
	if err != nil && os.IsTimeout(err) {
		return 0, false, nil
	}
	return 0, false, err
}

func (d *FileDriver) WriteBlock(p []byte) (int, error) {
	return d.f.Write(p)
}

func (d *FileDriver) Close() error {
	if d.f == nil {
		return nil
	}
	return d.f.Close()
}

// Poller drives one serial line: DCD transitions emit connect/disconnect
// (spec §4.2), and while connected it drains the pipe pair through the
// driver's byte calls.
type Poller struct {
	Driver   BlockDriver
	LineID   int
	Plane    *pipe.Plane
	Line     *line.Line
	Bus      *events.Bus
	BaudRate int
}

// Run polls until stop is closed, re-initialising the port on every
// DCD high->low transition as spec §4.2 requires.
func (p *Poller) Run(stop <-chan struct{}) {
	if err := p.Driver.Init(p.BaudRate); err != nil {
		logging.Error("serial: init line %d: %v", p.LineID, err)
		return
	}

	wasUp := false
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			p.Driver.Close()
			return
		case <-ticker.C:
		}

		up, err := p.Driver.CarrierDetect()
		if err != nil {
			logging.Warn("serial: DCD check line %d: %v", p.LineID, err)
			continue
		}

		switch {
		case up && !wasUp:
			p.Line.Connect("serial", time.Now(), p.Bus)
		case !up && wasUp:
			p.Line.Disconnect(p.Bus)
			p.Plane.Reset(p.LineID)
			p.Driver.Close()
			p.Driver.Init(p.BaudRate)
		}
		wasUp = up

		if up {
			p.pump()
		}
	}
}

func (p *Poller) pump() {
	for {
		b, ok, err := p.Driver.ReadByte()
		if err != nil {
			return
		}
		if !ok {
			break
		}
		p.Plane.EnqueueInputByte(p.LineID, b)
	}

	buf := make([]byte, 256)
	n := p.Plane.DequeueOutput(p.LineID, buf)
	if n > 0 {
		p.Driver.WriteBlock(buf[:n])
	}
}
