package core

import "sync"

// Deduplicator tracks job fingerprints for the lifetime of the
// orchestrator instance. It is intentionally not cleared between runs so
// two runs in the same process never re-emit the same posting; durable
// cross-process suppression belongs to the persistence gateway.
type Deduplicator struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDeduplicator() *Deduplicator {
	return &Deduplicator{seen: make(map[string]struct{})}
}

// Seen reports whether fp was already observed, marking it observed on
// the first call. Concurrent callers never both get false for the same
// fingerprint.
func (d *Deduplicator) Seen(fp string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.seen[fp]; ok {
		return true
	}
	d.seen[fp] = struct{}{}
	return false
}

func (d *Deduplicator) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}
