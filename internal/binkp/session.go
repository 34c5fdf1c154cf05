package binkp

import (
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/logging"
)

// idleTimeout is the no-data abort threshold (spec §4.10 "Errors":
// "idle > 60 s with no data").
const idleTimeout = 60 * time.Second

// OutboundFile is one file queued for transmission to the peer.
type OutboundFile struct {
	Path    string
	Name    string
	Size    int64
	ModTime time.Time
}

// Session drives one BinkP connection end-to-end: handshake then
// exchange (spec §4.10).
type Session struct {
	Conn        net.Conn
	OwnAddrs    []ftn.Address
	Password    string
	PasswordFor func(peer []ftn.Address) string // per-link password lookup; overrides Password
	Greeting    Greeting

	Outbound   []OutboundFile
	InboundDir string
	FREQPath   string // directory FREQ'd files are served from

	// OnFileReceived is invoked after an inbound file is fully written
	// and verified.
	OnFileReceived func(name string, path string, size int64, modTime time.Time)

	PeerAddrs []ftn.Address
}

// RunAnswerer handshakes as the answering side, then exchanges files.
func (s *Session) RunAnswerer() error {
	peer, err := s.AnswererHandshake()
	if err != nil {
		return err
	}
	s.PeerAddrs = peer
	logging.Info("binkp: authenticated %v", peer)
	return s.exchange()
}

// RunCaller handshakes as the calling side, then exchanges files.
func (s *Session) RunCaller() error {
	peer, err := s.CallerHandshake()
	if err != nil {
		return err
	}
	s.PeerAddrs = peer
	logging.Info("binkp: authenticated %v", peer)
	return s.exchange()
}

// exchange implements spec §4.10's Exchange state: concurrent sender
// (outbound queue + FREQ service, then M_EOB) and receiver (inbound
// M_FILE offers, data frames, M_GET/M_SKIP handling) over the same
// connection, closing once both sides have signalled M_EOB.
func (s *Session) exchange() error {
	errCh := make(chan error, 2)
	localEOB := make(chan struct{})
	peerEOB := make(chan struct{})

	go func() { errCh <- s.sendLoop(localEOB) }()
	go func() { errCh <- s.recvLoop(peerEOB) }()

	var sendErr, recvErr error
	done := 0
	for done < 2 {
		select {
		case err := <-errCh:
			done++
			if err != nil && err != io.EOF {
				if sendErr == nil {
					sendErr = err
				} else {
					recvErr = err
				}
			}
		case <-time.After(idleTimeout):
			// Approximates the per-read idle bound: if neither direction
			// has finished within idleTimeout the connection is treated
			// as stalled, since recvLoop's ReadFrame call is the only
			// place true per-byte idle tracking could live and net.Conn
			// read deadlines are set by the transport, not here.
			return fmt.Errorf("binkp: session idle timeout")
		}
	}
	if sendErr != nil {
		return sendErr
	}
	return recvErr
}

// sendLoop transmits every queued outbound file, then M_EOB.
func (s *Session) sendLoop(eob chan struct{}) error {
	for _, f := range s.Outbound {
		if err := s.sendFile(f); err != nil {
			return err
		}
	}
	close(eob)
	return WriteCommand(s.Conn, MEOB, "")
}

func (s *Session) sendFile(f OutboundFile) error {
	file, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer file.Close()

	offset := int64(0)
	if err := WriteCommand(s.Conn, MFILE, fmt.Sprintf("%s %d %d %d", f.Name, f.Size, f.ModTime.Unix(), offset)); err != nil {
		return err
	}

	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	buf := make([]byte, 4096)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			if werr := WriteData(s.Conn, buf[:n]); werr != nil {
				return werr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// recvLoop reads frames until peer M_EOB has arrived and every file in
// Outbound has been acknowledged with M_GOT, handling inbound M_FILE
// offers and FREQ requests (M_GET with size=0) inline.
func (s *Session) recvLoop(peerEOB chan struct{}) error {
	var current *inboundFile
	unacked := len(s.Outbound)
	gotEOB := false

	for {
		if err := s.Conn.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			logging.Debug("binkp: set read deadline: %v", err)
		}
		fr, err := ReadFrame(s.Conn)
		if err != nil {
			return err
		}

		if !fr.IsCommand {
			if current == nil {
				continue // stray data, no open file
			}
			if err := current.write(fr.Data); err != nil {
				return err
			}
			if current.done() {
				if err := current.finish(s); err != nil {
					return err
				}
				current = nil
			}
			continue
		}

		switch fr.Command {
		case MNUL:
			// informational, ignore
		case MFILE:
			cur, err := s.openInbound(fr.Arg)
			if err != nil {
				return err
			}
			current = cur
		case MGOT:
			// Acknowledgement for a file we sent.
			unacked--
			if gotEOB && unacked <= 0 {
				close(peerEOB)
				return nil
			}
		case MSKIP:
			if current != nil {
				current.abort()
				current = nil
			}
		case MGET:
			if err := s.handleFREQ(fr.Arg); err != nil {
				return err
			}
		case MEOB:
			gotEOB = true
			if unacked <= 0 {
				close(peerEOB)
				return nil
			}
		case MERR, MBSY:
			return fmt.Errorf("binkp: %s %s", CommandName(fr.Command), fr.Arg)
		}
	}
}

type inboundFile struct {
	name     string
	size     int64
	modTime  time.Time
	written  int64
	f        *os.File
	tmpPath  string
	finalDir string
}

func (s *Session) openInbound(arg string) (*inboundFile, error) {
	var name string
	var size, mtime, offset int64
	if _, err := fmt.Sscanf(arg, "%s %d %d %d", &name, &size, &mtime, &offset); err != nil {
		return nil, fmt.Errorf("binkp: malformed M_FILE arg %q: %w", arg, err)
	}
	if err := os.MkdirAll(s.InboundDir, 0755); err != nil {
		return nil, err
	}
	tmp := filepath.Join(s.InboundDir, name+".bnk")
	f, err := os.Create(tmp)
	if err != nil {
		return nil, err
	}
	return &inboundFile{name: name, size: size, modTime: time.Unix(mtime, 0), f: f, tmpPath: tmp, finalDir: s.InboundDir}, nil
}

func (in *inboundFile) write(data []byte) error {
	if _, err := in.f.Write(data); err != nil {
		return err
	}
	in.written += int64(len(data))
	return nil
}

func (in *inboundFile) done() bool { return in.written >= in.size }

// finish verifies length, renames into place, and ACKs with M_GOT
// (spec §4.10: "compare length and mtime against announcement, verify
// no truncation, ACK with M_GOT").
func (in *inboundFile) finish(s *Session) error {
	in.f.Close()
	if in.written != in.size {
		os.Remove(in.tmpPath)
		return fmt.Errorf("binkp: %s truncated: got %d bytes, want %d", in.name, in.written, in.size)
	}
	final := filepath.Join(in.finalDir, in.name)
	if err := os.Rename(in.tmpPath, final); err != nil {
		return err
	}
	if err := os.Chtimes(final, in.modTime, in.modTime); err != nil {
		logging.Warn("binkp: set mtime for %s: %v", final, err)
	}
	if s.OnFileReceived != nil {
		s.OnFileReceived(in.name, final, in.size, in.modTime)
	}
	return WriteCommand(s.Conn, MGOT, fmt.Sprintf("%s %d %d", in.name, in.size, in.modTime.Unix()))
}

func (in *inboundFile) abort() {
	in.f.Close()
	os.Remove(in.tmpPath)
}

// handleFREQ services a file request arriving as M_GET size=0 (spec
// §4.10 "FREQ"): matching files under FREQPath are queued for send;
// non-matches get M_SKIP.
func (s *Session) handleFREQ(arg string) error {
	var name string
	var size, mtime, offset int64
	fmt.Sscanf(arg, "%s %d %d %d", &name, &size, &mtime, &offset)
	if size != 0 || s.FREQPath == "" {
		return nil // a real M_GET resume request, not a FREQ
	}

	matches, err := filepath.Glob(filepath.Join(s.FREQPath, name))
	if err != nil || len(matches) == 0 {
		return WriteCommand(s.Conn, MSKIP, fmt.Sprintf("%s 0 0", name))
	}
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		s.Outbound = append(s.Outbound, OutboundFile{
			Path: m, Name: filepath.Base(m), Size: info.Size(), ModTime: info.ModTime(),
		})
	}
	return nil
}
