package script

import (
	"github.com/robwilkins/ftnbbs/internal/chat"
	"github.com/robwilkins/ftnbbs/internal/ftn"
	"github.com/robwilkins/ftnbbs/internal/store"
)

// DoorDef is one external program the `door` builtin (spec §9) can
// launch, decoupled from config.DoorConfig so this package doesn't need
// to import the config package just to read two fields.
type DoorDef struct {
	Command string
	Args    []string
}

// Context bundles every store/service the builtin command table
// touches, so Engine itself stays free of concrete wiring decisions
// (the caller in cmd/bbsd assembles one Context for the whole board).
type Context struct {
	Users       *store.UserStore
	MessageDirs map[string]*store.MessageArea // keyed by area tag
	FileDirs    map[string]*store.FileArea    // keyed by area tag
	Chat        *chat.ChatRoom
	Doors       map[string]DoorDef // keyed by door name

	SysopLevel int
	BoardName  string
	SysopName  string
	BoardAddr  ftn.Address
}
