package ftn

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a 5D FidoNet Technology Network address: zone:net/node.point
// with an optional domain suffix (@domain). Promoted from the teacher's
// internal/jam.FidoAddress, which only carried 4D (no domain).
type Address struct {
	Zone   int
	Net    int
	Node   int
	Point  int
	Domain string // lowercase; "" if unspecified
}

// ParseAddress parses "Z:N/N[.P][@domain]".
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	var a Address

	if at := strings.Index(s, "@"); at >= 0 {
		a.Domain = strings.ToLower(s[at+1:])
		s = s[:at]
	}

	zoneRest := strings.SplitN(s, ":", 2)
	if len(zoneRest) != 2 {
		return a, fmt.Errorf("ftn: invalid address %q: missing zone", s)
	}
	zone, err := strconv.Atoi(zoneRest[0])
	if err != nil {
		return a, fmt.Errorf("ftn: invalid zone in %q: %w", s, err)
	}
	a.Zone = zone

	netNode := strings.SplitN(zoneRest[1], "/", 2)
	if len(netNode) != 2 {
		return a, fmt.Errorf("ftn: invalid address %q: missing net/node separator", s)
	}
	net, err := strconv.Atoi(netNode[0])
	if err != nil {
		return a, fmt.Errorf("ftn: invalid net in %q: %w", s, err)
	}
	a.Net = net

	nodePoint := strings.SplitN(netNode[1], ".", 2)
	node, err := strconv.Atoi(nodePoint[0])
	if err != nil {
		return a, fmt.Errorf("ftn: invalid node in %q: %w", s, err)
	}
	a.Node = node

	if len(nodePoint) == 2 {
		point, err := strconv.Atoi(nodePoint[1])
		if err != nil {
			return a, fmt.Errorf("ftn: invalid point in %q: %w", s, err)
		}
		a.Point = point
	}

	return a, nil
}

// String renders the full 5D address, including domain if set.
func (a Address) String() string {
	base := a.String4D()
	if a.Domain == "" {
		return base
	}
	return base + "@" + a.Domain
}

// String4D renders zone:net/node[.point] without a domain.
func (a Address) String4D() string {
	if a.Point == 0 {
		return fmt.Sprintf("%d:%d/%d", a.Zone, a.Net, a.Node)
	}
	return fmt.Sprintf("%d:%d/%d.%d", a.Zone, a.Net, a.Node, a.Point)
}

// String2D renders net/node, as used in SEEN-BY and PATH lines.
func (a Address) String2D() string {
	return fmt.Sprintf("%d/%d", a.Net, a.Node)
}

// Equal reports whether two addresses are identical in every component,
// including domain (spec §3: "Two addresses are equal if all components
// match").
func (a Address) Equal(b Address) bool {
	return a.Zone == b.Zone && a.Net == b.Net && a.Node == b.Node &&
		a.Point == b.Point && a.Domain == b.Domain
}

// EqualNumeric reports whether two addresses match on zone/net/node/point
// only, ignoring domain — "a domain-insensitive match is used when routing
// by numeric identity" (spec §3).
func (a Address) EqualNumeric(b Address) bool {
	return a.Zone == b.Zone && a.Net == b.Net && a.Node == b.Node && a.Point == b.Point
}

// IsBoss reports whether this address is a boss node (point 0).
func (a Address) IsBoss() bool { return a.Point == 0 }

// Boss returns the boss-node address for a point, i.e. point zeroed out.
func (a Address) Boss() Address {
	b := a
	b.Point = 0
	return b
}
