package scanpack

import (
	"fmt"
	"strings"

	"github.com/robwilkins/ftnbbs/internal/groups"
)

// EchoFixNames are the robot addressee names netmail is checked against
// before being stored as ordinary private mail (spec §4.8 step 7).
var EchoFixNames = []string{"areafix", "filefix", "areamgr"}

// IsEchoFixTarget reports whether to is one of the AreaFix/FileFix/
// AreaMgr robot names.
func IsEchoFixTarget(to string) bool {
	for _, n := range EchoFixNames {
		if strings.EqualFold(to, n) {
			return true
		}
	}
	return false
}

// EchoFixReply is the netmail to queue back to the requester.
type EchoFixReply struct {
	Lines []string
}

func (r *EchoFixReply) add(format string, args ...any) {
	r.Lines = append(r.Lines, fmt.Sprintf(format, args...))
}

// HandleEchoFixRequest processes one AreaFix-style request body (spec
// §4.9 "EchoFix"): first line is the password, subsequent lines are
// +TAG/-TAG/TAG/%LIST/%QUERY/%HELP/%PAUSE/%RESUME commands. Subscriptions
// are checked against the link's allowed-echoes pattern and max-echoes
// count only; the allowed-groups and allowed-files patterns are not
// consulted.
func HandleEchoFixRequest(link *groups.Link, body string, allAreas []groups.Area) *EchoFixReply {
	reply := &EchoFixReply{}
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		reply.add("No password supplied.")
		return reply
	}
	password := strings.TrimSpace(lines[0])
	if link == nil || password != link.Password {
		reply.add("Password incorrect.")
		return reply
	}

	for _, raw := range lines[1:] {
		cmd := strings.TrimSpace(raw)
		if cmd == "" {
			continue
		}
		switch {
		case strings.EqualFold(cmd, "%LIST"):
			for _, a := range allAreas {
				mark := " "
				if groups.ContainsFold(link.AreaFixTags, a.Tag) {
					mark = "+"
				}
				reply.add("%s%s", mark, a.Tag)
			}
		case strings.EqualFold(cmd, "%QUERY"):
			reply.add("Subscribed areas: %s", strings.Join(link.AreaFixTags, " "))
		case strings.EqualFold(cmd, "%HELP"):
			reply.add("Commands: +TAG -TAG TAG %%LIST %%QUERY %%HELP %%PAUSE %%RESUME")
		case strings.EqualFold(cmd, "%PAUSE"):
			link.Paused = true
			reply.add("Paused.")
		case strings.EqualFold(cmd, "%RESUME"):
			link.Paused = false
			reply.add("Resumed.")
		case strings.HasPrefix(cmd, "+"):
			reply.add("%s", applySubscribe(link, allAreas, cmd[1:], true))
		case strings.HasPrefix(cmd, "-"):
			reply.add("%s", applySubscribe(link, allAreas, cmd[1:], false))
		default:
			subscribed := groups.ContainsFold(link.AreaFixTags, cmd)
			reply.add("%s", applySubscribe(link, allAreas, cmd, !subscribed))
		}
	}
	return reply
}

func applySubscribe(link *groups.Link, allAreas []groups.Area, tag string, subscribe bool) string {
	var area *groups.Area
	for i := range allAreas {
		if strings.EqualFold(allAreas[i].Tag, tag) {
			area = &allAreas[i]
			break
		}
	}
	if area == nil {
		return fmt.Sprintf("Unknown area %s.", tag)
	}
	if link.AllowEchoes != "" && !groups.Match(link.AllowEchoes, area.Tag) {
		return fmt.Sprintf("%s is not available to you.", tag)
	}
	if subscribe {
		if link.MaxEchoes > 0 && len(link.AreaFixTags) >= link.MaxEchoes && !groups.ContainsFold(link.AreaFixTags, tag) {
			return fmt.Sprintf("Subscription limit (%d) reached, %s not added.", link.MaxEchoes, tag)
		}
		if !groups.ContainsFold(link.AreaFixTags, tag) {
			link.AreaFixTags = append(link.AreaFixTags, area.Tag)
		}
		return fmt.Sprintf("+%s", tag)
	}
	link.AreaFixTags = removeFold(link.AreaFixTags, tag)
	return fmt.Sprintf("-%s", tag)
}

func removeFold(set []string, tag string) []string {
	out := set[:0]
	for _, s := range set {
		if !strings.EqualFold(s, tag) {
			out = append(out, s)
		}
	}
	return out
}
