// Package scanpack implements the scanner/packer (spec §4.9): routes
// unexported netmail to the right uplink, finds echomail subscribers,
// groups everything by destination and flavour into outbound packets,
// and runs EchoFix and TIC processing. No single teacher file covers
// this — it is grounded on internal/tosser's packet assembly
// (export.go) plus internal/groups' subscription matching, generalised
// from "one link list" to the full scan/pack/EchoFix/TIC surface the
// specification names.
package scanpack

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/groups"
	"github.com/robwilkins/ftnbbs/internal/store"
)

// OutMessage is one message queued for a destination, ready to be
// packed (spec §4.9 "Scan"/"Pack").
type OutMessage struct {
	Dest     ftn.Address
	AreaTag  string // "" for netmail
	To       string
	From     string
	Subject  string
	Body     *ftn.ParsedBody
	Flavour  Flavour
	SourceID int // store.Message id, for MarkExported after a successful pack
}

// Scanner holds the configuration a scan pass needs: our AKAs, the
// configured links, and the echo areas' group tags.
type Scanner struct {
	OwnAddrs      []ftn.Address
	Links         *groups.Manager
	DefaultUplink string // address of the fallback uplink for zone-default routing
	AreaGroups    map[string][]string // lowercased area tag -> groups
	Tearline      string
	Origins       []string
	pickOrigin    func(n int) int // injected for deterministic tests; defaults to math/rand
}

func NewScanner(links *groups.Manager) *Scanner {
	return &Scanner{Links: links, pickOrigin: func(n int) int { return rand.Intn(n) }}
}

func (s *Scanner) isOwnAddr(a ftn.Address) bool {
	for _, own := range s.OwnAddrs {
		if own.EqualNumeric(a) {
			return true
		}
	}
	return false
}

// RouteNetmail implements spec §4.9's "Netmail routing": local delivery
// for our own AKAs, then uplink-address match, then zone-aware default,
// with points resolving to their boss node.
func (s *Scanner) RouteNetmail(dest ftn.Address) (localDelivery bool, uplinkAddr string) {
	if s.isOwnAddr(dest) {
		return true, ""
	}
	boss := dest.Boss()
	for _, l := range s.Links.All() {
		addr, err := ftn.ParseAddress(l.Address)
		if err != nil {
			continue
		}
		if addr.EqualNumeric(dest) || addr.EqualNumeric(boss) {
			return false, l.Address
		}
	}
	for _, l := range s.Links.All() {
		addr, err := ftn.ParseAddress(l.Address)
		if err != nil {
			continue
		}
		if addr.Zone == dest.Zone && !l.IsDownlink {
			return false, l.Address
		}
	}
	return false, s.DefaultUplink
}

// ScanNetmail walks every unexported netmail message, routes it, and
// returns per-destination outbound queues. Locally-delivered netmail
// is marked exported immediately (it is not queued) per spec §4.9 step 1.
func (s *Scanner) ScanNetmail(area *store.MessageArea) (map[string][]OutMessage, error) {
	out := make(map[string][]OutMessage)
	msgs, err := area.FindUnexported()
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if !m.IsNetmail {
			continue
		}
		local, uplink := s.RouteNetmail(m.Dest)
		if local || uplink == "" {
			if err := area.MarkExported(m.ID); err != nil {
				return nil, err
			}
			continue
		}
		body, err := area.ReadBody(m)
		if err != nil {
			return nil, err
		}
		out[uplink] = append(out[uplink], OutMessage{
			Dest: m.Dest, To: m.ToName, From: m.FromName, Subject: m.Subject,
			Body:     &ftn.ParsedBody{Text: string(body), Kludges: kludgesFor(m)},
			Flavour:  FlavourNormal,
			SourceID: m.ID,
		})
	}
	return out, nil
}

// ScanEchoArea finds every subscriber for one echomail area and queues
// the area's unexported messages to each (spec §4.9 "Scan", echomail
// branch).
func (s *Scanner) ScanEchoArea(tag string, area *store.MessageArea) (map[string][]OutMessage, error) {
	out := make(map[string][]OutMessage)
	msgs, err := area.FindUnexported()
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return out, nil
	}

	areaInfo := groups.Area{Tag: tag, Groups: s.AreaGroups[strings.ToLower(tag)]}
	var subscribers []string
	for _, l := range s.Links.All() {
		if groups.Subscribes(l, areaInfo) {
			subscribers = append(subscribers, l.Address)
		}
	}

	for _, m := range msgs {
		if m.IsNetmail {
			continue
		}
		body, err := area.ReadBody(m)
		if err != nil {
			return nil, err
		}
		for i, dest := range subscribers {
			destAddr, err := ftn.ParseAddress(dest)
			if err != nil {
				continue
			}
			parsed := &ftn.ParsedBody{
				Area:    tag,
				Text:    string(body),
				Kludges: kludgesFor(m),
			}
			parsed.SeenBy = append([]string(nil), m.SeenBy...)
			parsed.Path = append([]string(nil), m.Path...)
			origin := s.originLine()
			if origin != "" {
				parsed.Text = strings.TrimRight(parsed.Text, "\r\n") + "\r" + s.Tearline + "\r" + origin
			}
			out[dest] = append(out[dest], OutMessage{
				Dest: destAddr, AreaTag: tag, To: "All", From: m.FromName, Subject: m.Subject,
				Body: parsed, Flavour: FlavourNormal, SourceID: m.ID,
			})
			_ = i
		}
		if err := area.MarkExported(m.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Scanner) originLine() string {
	if len(s.Origins) == 0 {
		return ""
	}
	i := s.pickOrigin(len(s.Origins))
	if i < 0 || i >= len(s.Origins) {
		i = 0
	}
	return fmt.Sprintf(" * Origin: %s", s.Origins[i])
}

func kludgesFor(m store.Message) []string {
	var k []string
	if m.MsgIDKludge != "" {
		k = append(k, "MSGID: "+m.MsgIDKludge)
	}
	return k
}

// MergeQueues merges b into a, appending per-destination slices.
func MergeQueues(a, b map[string][]OutMessage) map[string][]OutMessage {
	if a == nil {
		a = make(map[string][]OutMessage)
	}
	for k, v := range b {
		a[k] = append(a[k], v...)
	}
	return a
}
