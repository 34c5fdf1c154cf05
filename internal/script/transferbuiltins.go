package script

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/robwilkins/ftnbbs/internal/session"
	"github.com/robwilkins/ftnbbs/internal/store"
	"github.com/robwilkins/ftnbbs/internal/transfer"
)

func (e *Engine) fileArea(s *session.Session) (*store.FileArea, error) {
	tag := s.Var("filebaseareatag")
	if tag == "" {
		tag = "default"
	}
	area, ok := e.Ctx.FileDirs[tag]
	if !ok {
		return nil, fmt.Errorf("script: no file area %q configured", tag)
	}
	return area, nil
}

// doSendfile implements `sendfile id [proto]` (spec §4.4/§4.5): runs the
// chosen transfer protocol against the line's real pipes in a
// goroutine and suspends the script until it completes.
func (e *Engine) doSendfile(s *session.Session, st *runState, rest []string, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || len(rest) < 1 {
		return false, fmt.Errorf("script: sendfile requires a file id")
	}
	id, err := strconv.Atoi(e.expand(s, rest[0]))
	if err != nil {
		return false, fmt.Errorf("script: sendfile: invalid file id %q", rest[0])
	}
	proto := "zmodem"
	if len(rest) >= 2 {
		proto = strings.ToLower(e.expand(s, rest[1]))
	}

	area, err := e.fileArea(s)
	if err != nil {
		return false, err
	}
	rec, ok, err := area.SearchByID(id)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, fmt.Errorf("script: sendfile: no such file id %d", id)
	}
	f, err := os.Open(rec.PayloadFile)
	if err != nil {
		return false, err
	}

	done := make(chan struct{})
	w := &transferWait{done: done}
	lineID := s.Line.ID()
	pl := s.Plane
	line := s.Line
	bus := s.Bus

	go func() {
		defer close(done)
		defer f.Close()
		src, dst := transfer.NewPlaneIO(pl, lineID)
		w.err = transfer.SetTransferActive(func(active bool) { line.SetTransferActive(active, bus) }, func() error {
			switch proto {
			case "xmodem":
				return transfer.XmodemSendFile(src, dst, f, false)
			case "xmodem1k":
				return transfer.XmodemSendFile(src, dst, f, true)
			case "ymodem":
				return transfer.YmodemSendBatch(src, dst, []transfer.YmodemFile{
					{Name: rec.Name, Size: rec.SizeBytes, ModTime: rec.UploadedAt.Unix(), Body: f},
				}, false)
			case "ymodemg":
				return transfer.YmodemSendBatch(src, dst, []transfer.YmodemFile{
					{Name: rec.Name, Size: rec.SizeBytes, ModTime: rec.UploadedAt.Unix(), Body: f},
				}, true)
			default:
				zt := &transfer.ZmodemTransport{Src: src, Dst: dst}
				return transfer.ZmodemSendFile(zt, rec.Name, rec.SizeBytes, f)
			}
		})
	}()
	return suspend(w)
}

// doReceivefile implements `receivefile [name] [proto]`.
func (e *Engine) doReceivefile(s *session.Session, st *runState, rest []string, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil {
		return false, fmt.Errorf("script: receivefile: no file store configured")
	}
	proto := "zmodem"
	name := ""
	if len(rest) >= 1 {
		name = e.expand(s, rest[0])
	}
	if len(rest) >= 2 {
		proto = strings.ToLower(e.expand(s, rest[1]))
	}

	area, err := e.fileArea(s)
	if err != nil {
		return false, err
	}

	done := make(chan struct{})
	w := &transferWait{done: done}
	lineID := s.Line.ID()
	pl := s.Plane
	line := s.Line
	bus := s.Bus
	uid := s.Line.BoundUserID()

	go func() {
		defer close(done)
		src, dst := transfer.NewPlaneIO(pl, lineID)
		w.err = transfer.SetTransferActive(func(active bool) { line.SetTransferActive(active, bus) }, func() error {
			switch proto {
			case "xmodem", "xmodem1k":
				u, err := area.UploadBegin(name)
				if err != nil {
					return err
				}
				if err := transfer.XmodemReceiveFile(src, dst, uploadWriter{u}, true); err != nil {
					return err
				}
				_, err = area.UploadEnd(u, uid, "")
				return err
			case "ymodem", "ymodemg":
				open := func(n string, size int64) (io.WriteCloser, error) {
					u, err := area.UploadBegin(n)
					if err != nil {
						return nil, err
					}
					return funcWriteCloser{
						write: func(p []byte) (int, error) { return uploadWriter{u}.Write(p) },
						close: func() error { _, err := area.UploadEnd(u, uid, ""); return err },
					}, nil
				}
				return transfer.YmodemReceiveBatch(src, dst, open, proto == "ymodemg")
			default:
				u, err := area.UploadBegin(name)
				if err != nil {
					return err
				}
				zt := &transfer.ZmodemTransport{Src: src, Dst: dst}
				_, _, err = transfer.ZmodemReceiveFile(zt, uploadWriterAt{u}, 0)
				if err != nil {
					return err
				}
				_, err = area.UploadEnd(u, uid, "")
				return err
			}
		})
	}()
	return suspend(w)
}
