package nodelist

import "container/list"

// lruKey is the full 4-tuple cache key (spec §4.11).
type lruKey struct {
	zone, net, node, point int
}

// lru is a small hand-rolled bounded cache — no LRU package appears
// anywhere in the retrieved corpus, so this is authored directly
// against the standard container/list doubly-linked-list idiom.
type lru struct {
	capacity int
	ll       *list.List
	items    map[lruKey]*list.Element
}

type lruEntry struct {
	key   lruKey
	entry *Entry
}

func newLRU(capacity int) *lru {
	return &lru{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[lruKey]*list.Element, capacity),
	}
}

func (c *lru) get(key lruKey) (*Entry, bool) {
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.ll.MoveToFront(el)
	return el.Value.(*lruEntry).entry, true
}

func (c *lru) put(key lruKey, e *Entry) {
	if el, ok := c.items[key]; ok {
		el.Value.(*lruEntry).entry = e
		c.ll.MoveToFront(el)
		return
	}
	el := c.ll.PushFront(&lruEntry{key: key, entry: e})
	c.items[key] = el
	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.ll.Remove(oldest)
			delete(c.items, oldest.Value.(*lruEntry).key)
		}
	}
}
