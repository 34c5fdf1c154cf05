package nodelist

import "fmt"

// Route returns the entry to dial in order to reach dest: the node
// itself if it already carries an IBN flag or explicit host, else its
// hub, else its host, else its zone/region node — whichever is the
// first one found with a dialable address (spec §4.11: "walk HUB → HOST
// → ZONE/REGION until a node with an IBN flag or explicit host is
// found; return that node as the route").
func (idx *Index) Route(zone, net, node int) (*Entry, error) {
	e, ok := idx.Lookup(zone, net, node, 0)
	if !ok {
		return nil, fmt.Errorf("nodelist: no entry for %d:%d/%d", zone, net, node)
	}
	if isDialable(e) {
		return e, nil
	}

	// HUB: the Hub record this node fell under in file order.
	if e.HubNode != 0 && e.HubNode != e.Node {
		if hub, ok := idx.Lookup(zone, net, e.HubNode, 0); ok && isDialable(hub) {
			return hub, nil
		}
	}

	// HOST: the net's own zero-node entry.
	if host, ok := idx.Lookup(zone, net, 0, 0); ok && isDialable(host) {
		return host, nil
	}

	// ZONE/REGION: walk up to the zone coordinator.
	if zc, ok := idx.Lookup(zone, zone, 0, 0); ok && isDialable(zc) {
		return zc, nil
	}

	return nil, fmt.Errorf("nodelist: no dialable route to %d:%d/%d", zone, net, node)
}

func isDialable(e *Entry) bool {
	if e.HasFlag("IBN") {
		return true
	}
	host, _ := e.Hostname()
	return host != ""
}
