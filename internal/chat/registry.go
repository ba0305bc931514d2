package chat

import (
	"log/slog"
	"strings"
	"sync"
	"time"
)

type claim struct {
	claimedAt time.Time
	active    bool
}

// Registry tracks which display names are currently claimed. It knows
// nothing about connections; the Manager activates a claim once a channel
// is bound to it and releases it when that channel closes.
type Registry struct {
	mu     sync.Mutex
	log    *slog.Logger
	claims map[string]*claim
	ttl    time.Duration
	now    func() time.Time
}

// NewRegistry returns an empty registry. A claim that is not activated
// within ttl may be taken over by a later login; ttl <= 0 keeps pending
// claims until they are released.
func NewRegistry(log *slog.Logger, ttl time.Duration) *Registry {
	return &Registry{
		log:    log,
		claims: make(map[string]*claim),
		ttl:    ttl,
		now:    time.Now,
	}
}

// NormalizeName trims surrounding whitespace from a display name.
func NormalizeName(name string) string {
	return strings.TrimSpace(name)
}

// Claim marks name as taken and returns the accepted (trimmed) name.
func (r *Registry) Claim(name string) (string, error) {
	name = NormalizeName(name)
	if name == "" {
		return "", ErrNameRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.claims[name]; ok {
		if !r.expired(c) {
			return "", ErrNameTaken
		}
		r.log.Info("Pending claim expired, reassigning name", "name", name)
	}

	r.claims[name] = &claim{claimedAt: r.now()}
	return name, nil
}

func (r *Registry) expired(c *claim) bool {
	if c.active || r.ttl <= 0 {
		return false
	}
	return r.now().Sub(c.claimedAt) > r.ttl
}

// Activate binds a pending claim to a live session so it no longer expires.
// It returns false when name is not claimed or its claim already expired.
func (r *Registry) Activate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[name]
	if !ok {
		return false
	}
	if r.expired(c) {
		delete(r.claims, name)
		return false
	}
	c.active = true
	return true
}

// Release frees name for reuse. Releasing an unclaimed name is a no-op.
func (r *Registry) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, name)
}

// Claimed reports whether name is currently held by a live or pending claim.
func (r *Registry) Claimed(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.claims[NormalizeName(name)]
	return ok && !r.expired(c)
}
