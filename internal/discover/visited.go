package discover

import "sync"

// VisitedSet is the per-scan dedup set over normalized unit identifiers.
// It is shared by every worker participating in a scan; discovery dedup is
// only correct when synchronized.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet creates an empty visited set
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{
		seen: make(map[string]struct{}),
	}
}

// MarkVisited records a unit and reports whether it was new. Exactly one
// caller wins for any given identifier, so no unit is enqueued twice.
func (v *VisitedSet) MarkVisited(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.seen[id]; ok {
		return false
	}
	v.seen[id] = struct{}{}
	return true
}

// Forget releases a unit so a later caller can claim it again. Used when
// the work that followed a successful MarkVisited could not be completed.
func (v *VisitedSet) Forget(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.seen, id)
}

// Contains reports whether a unit has been seen
func (v *VisitedSet) Contains(id string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[id]
	return ok
}

// Len returns the number of units seen
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}
