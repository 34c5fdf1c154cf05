package binkp

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
)

// Greeting carries the M_NUL informational fields an answerer sends
// before M_ADR (spec §4.10 Answerer state machine).
type Greeting struct {
	Sys, Zyz, Loc, NDL, Ver string
}

func writeGreetingFields(w io.Writer, g Greeting) error {
	fields := []struct{ name, val string }{
		{"SYS", g.Sys}, {"ZYZ", g.Zyz}, {"LOC", g.Loc}, {"NDL", g.NDL},
		{"TIME", time.Now().Format(time.RFC1123Z)}, {"VER", g.Ver},
	}
	for _, f := range fields {
		if f.val == "" {
			continue
		}
		if err := WriteCommand(w, MNUL, f.name+" "+f.val); err != nil {
			return err
		}
	}
	return nil
}

func formatAddrs(addrs []ftn.Address) string {
	parts := make([]string, len(addrs))
	for i, a := range addrs {
		parts[i] = a.String4D()
	}
	return strings.Join(parts, " ")
}

func parseAddrs(arg string) []ftn.Address {
	var out []ftn.Address
	for _, f := range strings.Fields(arg) {
		if a, err := ftn.ParseAddress(f); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// AnswererHandshake runs LISTEN(already accepted) → SEND_GREETING →
// WAIT_ADR → WAIT_PWD → CHECK → SEND_OK, returning the caller's
// addresses once authenticated (spec §4.10 Answerer state machine).
func (s *Session) AnswererHandshake() ([]ftn.Address, error) {
	challenge, err := NewChallenge()
	if err != nil {
		return nil, err
	}

	if err := writeGreetingFields(s.Conn, s.Greeting); err != nil {
		return nil, err
	}
	if err := WriteCommand(s.Conn, MNUL, "OPT CRAM-MD5-"+challenge); err != nil {
		return nil, err
	}
	if err := WriteCommand(s.Conn, MADR, formatAddrs(s.OwnAddrs)); err != nil {
		return nil, err
	}

	var peerAddrs []ftn.Address
	var pwdArg string
	gotAdr, gotPwd := false, false
	for !gotAdr || !gotPwd {
		fr, err := ReadFrame(s.Conn)
		if err != nil {
			return nil, err
		}
		if !fr.IsCommand {
			continue // ignore stray data before auth completes
		}
		switch fr.Command {
		case MADR:
			peerAddrs = parseAddrs(fr.Arg)
			gotAdr = true
		case MPWD:
			pwdArg = fr.Arg
			gotPwd = true
		case MNUL:
			// informational, ignore
		case MERR, MBSY:
			return nil, fmt.Errorf("binkp: peer aborted handshake: %s %s", CommandName(fr.Command), fr.Arg)
		default:
			return nil, fmt.Errorf("binkp: unexpected %s during handshake", CommandName(fr.Command))
		}
	}

	expected := s.passwordFor(peerAddrs)
	if err := CheckPassword(pwdArg, expected, challenge); err != nil {
		WriteCommand(s.Conn, MERR, "bad password")
		return nil, err
	}
	if err := WriteCommand(s.Conn, MOK, "ok"); err != nil {
		return nil, err
	}
	return peerAddrs, nil
}

// CallerHandshake runs CONNECT(already dialled) → WAIT_GREETING →
// SEND_ADR → SEND_PWD → WAIT_OK (spec §4.10 Caller state machine).
func (s *Session) CallerHandshake() ([]ftn.Address, error) {
	var challenge string
	var peerAddrs []ftn.Address

	for {
		fr, err := ReadFrame(s.Conn)
		if err != nil {
			return nil, err
		}
		if !fr.IsCommand {
			continue
		}
		switch fr.Command {
		case MNUL:
			if ch, ok := ParseChallenge(fr.Arg); ok {
				challenge = ch
			}
		case MADR:
			peerAddrs = parseAddrs(fr.Arg)
			// Addresses received; proceed to send ours and the password.
			if err := WriteCommand(s.Conn, MADR, formatAddrs(s.OwnAddrs)); err != nil {
				return nil, err
			}
			pwdArg := s.Password
			if challenge != "" {
				pwdArg = FormatCRAMResponse(s.Password, challenge)
			}
			if err := WriteCommand(s.Conn, MPWD, pwdArg); err != nil {
				return nil, err
			}
		case MOK:
			return peerAddrs, nil
		case MERR, MBSY:
			return nil, fmt.Errorf("binkp: peer aborted handshake: %s %s", CommandName(fr.Command), fr.Arg)
		}
	}
}

// passwordFor resolves the expected password for an authenticating
// peer, defaulting to the session's own configured password when no
// per-link lookup is installed.
func (s *Session) passwordFor(peer []ftn.Address) string {
	if s.PasswordFor != nil {
		return s.PasswordFor(peer)
	}
	return s.Password
}
