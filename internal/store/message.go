package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robwilkins/ftnbbs/internal/ftn"
)

// Message is one stored message-base entry: header fields mirrored from
// the FTN packed message (spec §4.7) plus the store-level bookkeeping
// C8/C9 need to scan for unexported echomail.
type Message struct {
	ID         int       `json:"id"`
	AreaTag    string    `json:"areaTag"`
	FromName   string    `json:"fromName"`
	ToName     string    `json:"toName"`
	Subject    string    `json:"subject"`
	Origin     ftn.Address `json:"origin"`
	Dest       ftn.Address `json:"dest"`
	Written    time.Time `json:"written"`
	MsgIDKludge string   `json:"msgIdKludge"`
	SeenBy     []string  `json:"seenBy"`
	Path       []string  `json:"path"`
	IsNetmail  bool      `json:"isNetmail"`
	Exported   bool      `json:"exported"`
	BodyFile   string    `json:"bodyFile"` // relative to the area's payload dir
}

// MessageArea is one configured message base, rooted at its own
// directory the way the teacher's message areas are each a standalone
// JAM base.
type MessageArea struct {
	dir string
	reg *Registry[Message]
}

func OpenMessageArea(dir string) (*MessageArea, error) {
	reg, err := NewRegistry[Message](dir)
	if err != nil {
		return nil, err
	}
	return &MessageArea{dir: dir, reg: reg}, nil
}

// BeginBody opens (creating) the body file for an in-progress write,
// grouped into the area's payload subdirectory by id.
func (a *MessageArea) BeginBody(id int) (*os.File, string, error) {
	dir, err := a.reg.PayloadDir(id)
	if err != nil {
		return nil, "", err
	}
	rel := fmt.Sprintf("%d/%d.msg", id/PayloadGroupSize, id)
	f, err := os.Create(filepath.Join(dir, fmt.Sprintf("%d.msg", id)))
	return f, rel, err
}

// Add stores a new message header, allocating the next id.
func (a *MessageArea) Add(m Message) (int, error) {
	return a.reg.Add(m)
}

func (a *MessageArea) Update(id int, m Message) error {
	return a.reg.Update(id, m)
}

func (a *MessageArea) SearchByID(id int) (Message, bool, error) {
	return a.reg.SearchByID(id)
}

func (a *MessageArea) ReadBody(m Message) ([]byte, error) {
	return os.ReadFile(filepath.Join(a.dir, "payload", m.BodyFile))
}

// MarkExported flips the exported flag once a scan/pack run has bundled a
// message toward its downlinks (spec §4.6: "mark-exported and
// find-unexported for mail scanning").
func (a *MessageArea) MarkExported(id int) error {
	m, ok, err := a.reg.SearchByID(id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("store: message %d not found", id)
	}
	m.Exported = true
	return a.reg.Update(id, m)
}

// FindUnexported returns every message not yet marked exported, the
// C9 scanner's source set for outbound packing.
func (a *MessageArea) FindUnexported() ([]Message, error) {
	var out []Message
	err := a.reg.Iterate(func(_ int, m Message) bool {
		if !m.Exported {
			out = append(out, m)
		}
		return true
	})
	return out, err
}

func (a *MessageArea) Iterate(fn func(id int, m Message) bool) error {
	return a.reg.Iterate(fn)
}
