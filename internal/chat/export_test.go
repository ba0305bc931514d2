package chat

import "time"

// SetClock replaces the registry clock so tests can age pending claims.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}
