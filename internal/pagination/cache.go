package pagination

import (
	"sort"
	"sync"
	"time"
)

// DefaultCursorTTL is how long a cursor chain is reused before it is rebuilt.
const DefaultCursorTTL = 10 * time.Minute

type chainKey struct {
	operation string
	scope     string
}

// chain holds the known offset→cursor entries for one (operation, scope).
// Offset 0 is implicit: it needs no cursor.
type chain struct {
	mu      sync.Mutex
	cursors map[int]string
	created time.Time
}

// CursorCache maps (operation, scope, offset) to the cursor that must be sent
// as "after" to start reading at offset. Locks are held only for map access.
type CursorCache struct {
	ttl time.Duration
	now func() time.Time

	mu     sync.Mutex
	chains map[chainKey]*chain
}

// NewCursorCache returns an empty cache. ttl <= 0 uses DefaultCursorTTL.
func NewCursorCache(ttl time.Duration) *CursorCache {
	if ttl <= 0 {
		ttl = DefaultCursorTTL
	}
	return &CursorCache{
		ttl:    ttl,
		now:    time.Now,
		chains: make(map[chainKey]*chain),
	}
}

func (c *CursorCache) chain(op, scope string, create bool) *chain {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := chainKey{operation: op, scope: scope}
	ch, ok := c.chains[key]
	if ok && c.now().Sub(ch.created) > c.ttl {
		delete(c.chains, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		ch = &chain{cursors: make(map[int]string), created: c.now()}
		c.chains[key] = ch
	}
	return ch
}

// Nearest returns the largest known offset <= offset and its cursor. It
// returns (0, "") when nothing better than the start is known.
func (c *CursorCache) Nearest(op, scope string, offset int) (int, string) {
	ch := c.chain(op, scope, false)
	if ch == nil {
		return 0, ""
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()

	best, cursor := 0, ""
	for o, cur := range ch.cursors {
		if o <= offset && o > best {
			best, cursor = o, cur
		}
	}
	return best, cursor
}

// Record stores cursor for offset if no entry exists. It reports whether the
// cache now holds exactly cursor for offset; an existing different entry is
// kept.
func (c *CursorCache) Record(op, scope string, offset int, cursor string) bool {
	if offset <= 0 || cursor == "" {
		return false
	}
	ch := c.chain(op, scope, true)
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if existing, ok := ch.cursors[offset]; ok {
		return existing == cursor
	}
	ch.cursors[offset] = cursor
	return true
}

// Entry is one cached offset→cursor pair.
type Entry struct {
	Offset int
	Cursor string
}

// Entries returns the live entries of one chain in offset order.
func (c *CursorCache) Entries(op, scope string) []Entry {
	ch := c.chain(op, scope, false)
	if ch == nil {
		return nil
	}
	ch.mu.Lock()
	out := make([]Entry, 0, len(ch.cursors))
	for o, cur := range ch.cursors {
		out = append(out, Entry{Offset: o, Cursor: cur})
	}
	ch.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out
}

// Len returns the number of live entries across all chains and drops expired chains.
func (c *CursorCache) Len() int {
	c.mu.Lock()
	live := make([]*chain, 0, len(c.chains))
	now := c.now()
	for key, ch := range c.chains {
		if now.Sub(ch.created) > c.ttl {
			delete(c.chains, key)
			continue
		}
		live = append(live, ch)
	}
	c.mu.Unlock()

	n := 0
	for _, ch := range live {
		ch.mu.Lock()
		n += len(ch.cursors)
		ch.mu.Unlock()
	}
	return n
}
