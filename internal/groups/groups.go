// Package groups tracks echo/file-area grouping and per-link
// subscription sets for the scanner (spec §4.9: "a subscriber is
// either (a) an uplink whose 'groups' set overlaps the area's 'groups'
// set ... or (b) a downlink whose AreaFix subscriptions contain this
// area and whose allowed-echoes pattern matches"). Grounded on the
// teacher's internal/conference.ConferenceManager — same load/lookup
// shape, repurposed from a UI grouping concept onto FTN subscription
// bookkeeping.
package groups

import (
	"sort"
	"strings"
	"sync"
)

// Link is one configured uplink or downlink node's subscription state.
type Link struct {
	Address       string   `yaml:"address"`
	Name          string   `yaml:"name"`
	IsDownlink    bool     `yaml:"isDownlink"`
	Groups        []string `yaml:"groups"`        // empty = match all areas (uplinks)
	AreaFixTags   []string `yaml:"areaFixTags"`    // explicit per-tag subscriptions (downlinks)
	AllowEchoes   string   `yaml:"allowEchoes"`    // wildcard pattern, e.g. "FIDO.*"
	AllowGroups   string   `yaml:"allowGroups"`
	AllowFiles    string   `yaml:"allowFiles"`
	MaxEchoes     int      `yaml:"maxEchoes"`     // 0 = unlimited
	MaxFiles      int      `yaml:"maxFiles"`
	Password      string   `yaml:"password"`
	Paused        bool     `yaml:"paused"`
}

// Area carries the group tags a message or file area belongs to, for
// matching against a Link's Groups set.
type Area struct {
	Tag    string
	Groups []string // empty = matches any uplink group set
}

// Manager holds the configured links for one network and answers
// scanner subscription queries.
type Manager struct {
	mu    sync.RWMutex
	links map[string]*Link // lowercased address -> link
}

func NewManager(links []Link) *Manager {
	m := &Manager{links: make(map[string]*Link)}
	for i := range links {
		l := links[i]
		m.links[strings.ToLower(l.Address)] = &l
	}
	return m
}

func (m *Manager) Get(address string) (*Link, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.links[strings.ToLower(address)]
	return l, ok
}

func (m *Manager) All() []*Link {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Link, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Subscribes reports whether link should receive echomail for area,
// per spec §4.9's "Scan" subscriber rule.
func Subscribes(l *Link, area Area) bool {
	if l.Paused {
		return false
	}
	if !l.IsDownlink {
		return groupsOverlap(l.Groups, area.Groups)
	}
	if !ContainsFold(l.AreaFixTags, area.Tag) {
		return false
	}
	return l.AllowEchoes == "" || Match(l.AllowEchoes, area.Tag)
}

// groupsOverlap implements "empty on either side means match all".
func groupsOverlap(linkGroups, areaGroups []string) bool {
	if len(linkGroups) == 0 || len(areaGroups) == 0 {
		return true
	}
	for _, lg := range linkGroups {
		for _, ag := range areaGroups {
			if strings.EqualFold(lg, ag) {
				return true
			}
		}
	}
	return false
}

// ContainsFold reports whether tag is present in set, case-insensitively.
func ContainsFold(set []string, tag string) bool {
	for _, s := range set {
		if strings.EqualFold(s, tag) {
			return true
		}
	}
	return false
}

// Match implements the `*`/`?` wildcard patterns EchoFix and subscriber
// matching use (spec §4.9: "validated against the allowed-groups/
// allowed-echoes/allowed-files patterns (wildcards * and ?)").
func Match(pattern, s string) bool {
	return matchFold([]rune(strings.ToUpper(pattern)), []rune(strings.ToUpper(s)))
}

func matchFold(pattern, s []rune) bool {
	if len(pattern) == 0 {
		return len(s) == 0
	}
	switch pattern[0] {
	case '*':
		return matchFold(pattern[1:], s) || (len(s) > 0 && matchFold(pattern, s[1:]))
	case '?':
		return len(s) > 0 && matchFold(pattern[1:], s[1:])
	default:
		return len(s) > 0 && s[0] == pattern[0] && matchFold(pattern[1:], s[1:])
	}
}
