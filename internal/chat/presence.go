package chat

import (
	"sort"
	"sync"
)

// PresenceSet is the live set of online user ids. The server pushes the full
// set on every change; it is replaced wholesale, never patched.
type PresenceSet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewPresenceSet() *PresenceSet {
	return &PresenceSet{ids: map[string]struct{}{}}
}

// Replace swaps in the authoritative server view.
func (p *PresenceSet) Replace(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	p.mu.Lock()
	p.ids = next
	p.mu.Unlock()
}

// Online reports whether the given user id is currently online.
func (p *PresenceSet) Online(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[id]
	return ok
}

// IDs returns a sorted snapshot of the online user ids.
func (p *PresenceSet) IDs() []string {
	p.mu.RLock()
	out := make([]string, 0, len(p.ids))
	for id := range p.ids {
		out = append(out, id)
	}
	p.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (p *PresenceSet) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.ids)
}

func (p *PresenceSet) Clear() {
	p.mu.Lock()
	p.ids = map[string]struct{}{}
	p.mu.Unlock()
}
