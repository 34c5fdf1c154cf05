// Package nodelist parses and compiles the FTS-0005 nodelist into a
// binary index for fast lookups and hub-route resolution (spec §4.11).
// No teacher file covers this — fsnotify's directory-watch shape is
// grounded on cmd/vision3/config_watcher.go, but the parser, binary
// index, LRU cache, and hub-route walk are authored directly from
// spec.md §4.11/§6.
package nodelist

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Keyword selects the status of a nodelist entry (spec §4.11).
type Keyword int

const (
	KeywordNormal Keyword = iota
	KeywordZone
	KeywordRegion
	KeywordHost
	KeywordHub
	KeywordPvt
	KeywordHold
	KeywordDown
)

func parseKeyword(s string) (Keyword, bool) {
	switch strings.ToUpper(s) {
	case "":
		return KeywordNormal, true
	case "ZONE":
		return KeywordZone, true
	case "REGION":
		return KeywordRegion, true
	case "HOST":
		return KeywordHost, true
	case "HUB":
		return KeywordHub, true
	case "PVT":
		return KeywordPvt, true
	case "HOLD":
		return KeywordHold, true
	case "DOWN":
		return KeywordDown, true
	default:
		return KeywordNormal, false
	}
}

// Entry is one parsed nodelist record.
type Entry struct {
	Keyword Keyword
	Zone    int
	Net     int
	Node    int
	Point   int
	Name    string
	Loc     string
	Sysop   string
	Phone   string
	Baud    int
	Flags   []string

	// HubNode is the node number of the Hub record this entry falls
	// under in file order (spec §4.11 hub-route walking); equal to Node
	// itself for Hub records, and 0 for Host/Region/Zone records and for
	// nodes with no intervening Hub line in their net.
	HubNode int

	// IBNHost/IBNPort carry the optional explicit host/port parsed out
	// of an IBN flag (spec §4.11: "IBN[:<host>[:<port>]]").
	IBNHost string
	IBNPort int
}

// HasFlag reports whether a flag (e.g. "CM", "IBN", "MO") is present,
// matching IBN regardless of an attached host:port suffix.
func (e *Entry) HasFlag(name string) bool {
	name = strings.ToUpper(name)
	for _, f := range e.Flags {
		if strings.ToUpper(f) == name {
			return true
		}
		if name == "IBN" && strings.HasPrefix(strings.ToUpper(f), "IBN:") {
			return true
		}
	}
	return false
}

// defaultBinkPPort is used when an IBN flag carries no explicit port
// (spec §4.11: "port — default 24554").
const defaultBinkPPort = 24554

// Parse reads an FTS-0005 nodelist, skipping ';' comment lines, and
// returns every record with Zone/Net/HubNode filled in from the running
// Zone/Region/Host/Hub context the keyword lines establish as the file
// advances (spec §4.11).
func Parse(r io.Reader) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var entries []Entry
	var curZone, curNet, curHub int
	lineNo := 0

	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ";") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 7 {
			return nil, fmt.Errorf("nodelist: line %d: expected at least 7 fields, got %d", lineNo, len(fields))
		}

		kw, ok := parseKeyword(fields[0])
		if !ok {
			return nil, fmt.Errorf("nodelist: line %d: unknown keyword %q", lineNo, fields[0])
		}

		node, err := strconv.Atoi(fields[1])
		if err != nil {
			return nil, fmt.Errorf("nodelist: line %d: invalid node number %q: %w", lineNo, fields[1], err)
		}

		baud, _ := strconv.Atoi(fields[6])

		e := Entry{
			Keyword: kw,
			Name:    unpad(fields[2]),
			Loc:     unpad(fields[3]),
			Sysop:   unpad(fields[4]),
			Phone:   unpad(fields[5]),
			Baud:    baud,
		}
		if len(fields) > 7 {
			e.Flags = fields[7:]
		}

		switch kw {
		case KeywordZone:
			curZone = node
			curNet = node
			curHub = 0
			e.Zone, e.Net, e.Node = curZone, curNet, 0
		case KeywordRegion, KeywordHost:
			curNet = node
			curHub = 0
			e.Zone, e.Net, e.Node = curZone, curNet, 0
		case KeywordHub:
			curHub = node
			e.Zone, e.Net, e.Node = curZone, curNet, node
		default: // NORMAL, PVT, HOLD, DOWN
			e.Zone, e.Net, e.Node = curZone, curNet, node
		}
		e.HubNode = curHub

		for _, f := range e.Flags {
			uf := strings.ToUpper(f)
			if strings.HasPrefix(uf, "IBN") {
				e.IBNPort = defaultBinkPPort
				rest := f[3:]
				if strings.HasPrefix(rest, ":") {
					parts := strings.SplitN(rest[1:], ":", 2)
					if len(parts) >= 1 && parts[0] != "" {
						e.IBNHost = parts[0]
					}
					if len(parts) == 2 {
						if p, err := strconv.Atoi(parts[1]); err == nil {
							e.IBNPort = p
						}
					}
				}
			}
		}

		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// unpad replaces FTS-0005's underscore word-separator convention with
// spaces in free-text fields.
func unpad(s string) string {
	return strings.ReplaceAll(s, "_", " ")
}

// Hostname resolves the BinkP host/port to dial for an entry (spec
// §4.11: "Hostname resolution returns (name or empty, port — default
// 24554)").
func (e *Entry) Hostname() (string, int) {
	if e.IBNHost != "" {
		port := e.IBNPort
		if port == 0 {
			port = defaultBinkPPort
		}
		return e.IBNHost, port
	}
	if e.HasFlag("IBN") {
		return "", defaultBinkPPort
	}
	return "", defaultBinkPPort
}
