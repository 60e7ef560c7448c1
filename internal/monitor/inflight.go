package monitor

import "sync"

// InFlight tracks positions whose close is currently being dispatched so one
// scan cycle never fires twice for the same position. It lives in process
// memory only: a crash loses it, and the settlement journal's idempotency
// keys are what actually prevent double settlement.
type InFlight struct {
	mu     sync.Mutex
	active map[string]struct{}
}

// NewInFlight creates an empty in-flight set.
func NewInFlight() *InFlight {
	return &InFlight{active: make(map[string]struct{})}
}

// TryAcquire marks the position as in flight. It returns false when the
// position is already being dispatched.
func (f *InFlight) TryAcquire(positionID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.active[positionID]; ok {
		return false
	}
	f.active[positionID] = struct{}{}
	return true
}

// Release removes one position from the set.
func (f *InFlight) Release(positionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, positionID)
}

// Clear empties the set. The scheduler calls it at the end of every cycle,
// whether the cycle succeeded or not, so a dispatch that errored out can be
// retried on the next scan.
func (f *InFlight) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.active)
}

// Len returns the number of positions currently in flight.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}
