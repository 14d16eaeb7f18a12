package client

import "sync"

// dedupCache remembers seen notification ids so replays from the
// at-least-once pipeline surface only once. Bounded FIFO eviction.
type dedupCache struct {
	mu    sync.Mutex
	seen  map[string]struct{}
	order []string
	cap   int
}

func newDedupCache(capacity int) *dedupCache {
	return &dedupCache{
		seen: make(map[string]struct{}, capacity),
		cap:  capacity,
	}
}

// Seen marks id as seen and reports whether it had been seen before.
func (d *dedupCache) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[id]; ok {
		return true
	}
	d.seen[id] = struct{}{}
	d.order = append(d.order, id)
	if len(d.order) > d.cap {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.seen, oldest)
	}
	return false
}
