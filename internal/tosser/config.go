// Package tosser imports inbound FTN packets and arcmail bundles into
// the object store's message areas, and packs unexported messages back
// out (spec §4.8). Grounded on the teacher's internal/tosser, rewired
// from internal/message.MessageManager + internal/jam onto
// internal/store.MessageArea and internal/ftn.
package tosser

import (
	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/store"
)

// Config configures a single Tosser instance for one FTN network/domain.
type Config struct {
	NetworkName string
	OwnAddr     ftn.Address

	InboundDir   string
	BadDir       string
	ProcessedDir string
	TempDir      string

	// Areas maps a lowercased echo tag to its message area, shared with
	// the script engine's Context.MessageDirs (spec §4.6/§4.4).
	Areas map[string]*store.MessageArea

	// NetmailArea holds inbound netmail pending C9 routing/delivery.
	NetmailArea *store.MessageArea

	// EchoFix, when set, intercepts netmail addressed to AreaFix/FileFix/
	// AreaMgr-style robots instead of filing it as ordinary netmail
	// (spec §4.8 step 7, §4.9 "EchoFix").
	EchoFix func(msg *ftn.PackedMessage, from ftn.Address) (handled bool, err error)

	// DupeDB tracks recently seen messages across runs.
	DupeDB *DupeDB
}
