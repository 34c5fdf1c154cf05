package script

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/robwilkins/ftnbbs/internal/door"
	"github.com/robwilkins/ftnbbs/internal/session"
)

// doDoor implements `door name` (spec §9): launches the named external
// program attached to the line's real pipes through a PTY, suspending
// the script until it exits or the line is cancelled. Follows the same
// goroutine-plus-waiter shape as doSendfile/doReceivefile, swapping the
// transfer protocol for internal/door's PTY copy loop.
func (e *Engine) doDoor(s *session.Session, st *runState, rest []string, suspend func(waiter) (bool, error), advance func() (bool, error)) (bool, error) {
	if e.Ctx == nil || len(rest) < 1 {
		return false, fmt.Errorf("script: door requires a door name")
	}
	name := e.expand(s, rest[0])
	def, ok := e.Ctx.Doors[name]
	if !ok {
		return false, fmt.Errorf("script: door: no such door %q", name)
	}

	info := door.Info{
		NodeNumber:   s.Line.ID(),
		Alias:        s.Var("handle"),
		RealName:     s.Var("realname"),
		AccessLevel:  0,
		TimeLeftMins: 0,
		Width:        80,
		Height:       s.Terminal.PageHeight,
		BBSName:      e.Ctx.BoardName,
		SysopName:    e.Ctx.SysopName,
	}
	if uid := s.Line.BoundUserID(); uid != 0 && e.Ctx.Users != nil {
		if u, found, err := e.Ctx.Users.SearchByID(uid); err == nil && found {
			info.UserID = u.ID
			info.Alias = u.Handle
			info.RealName = u.RealName
			info.AccessLevel = u.AccessLevel
			info.Keys = u.Flags
			info.TimeLeftMins = u.TimeLimitMin
		}
	}

	cmd := exec.Command(def.Command, expandDoorArgs(e, s, def.Args)...)
	cmd.Env = append(os.Environ(), doorEnv(info)...)

	done := make(chan struct{})
	w := &transferWait{done: done}
	lineID := s.Line.ID()
	pl := s.Plane
	line := s.Line
	bus := s.Bus

	go func() {
		defer close(done)
		line.SetTransferActive(true, bus)
		defer line.SetTransferActive(false, bus)
		w.err = door.Run(pl, lineID, cmd, door.WindowSize{Rows: 24, Cols: 80}, line.Cancelled)
	}()
	return suspend(w)
}

func expandDoorArgs(e *Engine, s *session.Session, args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = e.expand(s, a)
	}
	return out
}

// doorEnv renders the stable door ABI (spec §9's DoorUserInfo/
// DoorSystemInfo note) as environment variables, since the programs
// this launches are expected to be simple single-user CLI doors rather
// than full dropfile-reading BBS doors.
func doorEnv(info door.Info) []string {
	return []string{
		"DOOR_NODE=" + strconv.Itoa(info.NodeNumber),
		"DOOR_USERID=" + strconv.Itoa(info.UserID),
		"DOOR_ALIAS=" + info.Alias,
		"DOOR_REALNAME=" + info.RealName,
		"DOOR_ACCESSLEVEL=" + strconv.Itoa(info.AccessLevel),
		"DOOR_KEYS=" + info.Keys,
		"DOOR_TIMELEFT=" + strconv.Itoa(info.TimeLeftMins),
		"DOOR_WIDTH=" + strconv.Itoa(info.Width),
		"DOOR_HEIGHT=" + strconv.Itoa(info.Height),
		"DOOR_BBSNAME=" + info.BBSName,
		"DOOR_SYSOPNAME=" + info.SysopName,
	}
}
