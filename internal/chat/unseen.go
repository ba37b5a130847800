package chat

import "sync"

// UnseenIndex tracks, per counterpart, how many pushed messages arrived while
// that conversation was not selected. The roster fetch seeds it with the
// server's counts; pushes increment it afterwards.
type UnseenIndex struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewUnseenIndex() *UnseenIndex {
	return &UnseenIndex{counts: map[string]int{}}
}

func (u *UnseenIndex) Increment(counterpartID string) {
	u.mu.Lock()
	u.counts[counterpartID]++
	u.mu.Unlock()
}

// Clear resets the counter for one counterpart.
func (u *UnseenIndex) Clear(counterpartID string) {
	u.mu.Lock()
	delete(u.counts, counterpartID)
	u.mu.Unlock()
}

// ClearAll resets every counter. Used on logout.
func (u *UnseenIndex) ClearAll() {
	u.mu.Lock()
	u.counts = map[string]int{}
	u.mu.Unlock()
}

// Seed replaces all counters with the server-reported ones. Zero entries are
// dropped so Counts stays minimal.
func (u *UnseenIndex) Seed(counts map[string]int) {
	next := make(map[string]int, len(counts))
	for id, n := range counts {
		if n > 0 {
			next[id] = n
		}
	}
	u.mu.Lock()
	u.counts = next
	u.mu.Unlock()
}

func (u *UnseenIndex) Count(counterpartID string) int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return u.counts[counterpartID]
}

// Counts returns a snapshot of all non-zero counters.
func (u *UnseenIndex) Counts() map[string]int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	out := make(map[string]int, len(u.counts))
	for id, n := range u.counts {
		out[id] = n
	}
	return out
}

// Total is the sum of all counters.
func (u *UnseenIndex) Total() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	sum := 0
	for _, n := range u.counts {
		sum += n
	}
	return sum
}
