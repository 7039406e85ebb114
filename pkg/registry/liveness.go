package registry

import (
	"slices"
	"time"
)

// Liveness transitions are kept in memory only: every record is forced
// offline on reload, so persisting them would only churn the store.

// MarkOwnerOnline marks every tool of ownerID online and refreshes lastSeen.
// Returns the names that transitioned from offline.
func (r *Registry) MarkOwnerOnline(ownerID string) []string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	for name, status := range r.tools {
		if status.OwnerID != ownerID {
			continue
		}
		status.LastSeen = now
		if !status.Online {
			status.Online = true
			flipped = append(flipped, name)
		}
	}
	slices.Sort(flipped)
	return flipped
}

// MarkOwnerOffline marks every tool of ownerID offline.
// Returns the names that transitioned from online.
func (r *Registry) MarkOwnerOffline(ownerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	for name, status := range r.tools {
		if status.OwnerID == ownerID && status.Online {
			status.Online = false
			flipped = append(flipped, name)
		}
	}
	slices.Sort(flipped)
	return flipped
}

// Touch records a heartbeat for exactly the given names, ignoring names that
// are unknown or owned by someone else. Names of ownerID that are not listed
// are left alone and will age out through Sweep.
// Returns the names that transitioned from offline.
func (r *Registry) Touch(ownerID string, names []string) []string {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	for _, name := range names {
		status, ok := r.tools[name]
		if !ok || status.OwnerID != ownerID {
			continue
		}
		status.LastSeen = now
		if !status.Online {
			status.Online = true
			flipped = append(flipped, name)
		}
	}
	slices.Sort(flipped)
	return slices.Compact(flipped)
}

// Sweep forces offline every online tool not seen within staleAfter.
// Returns the names that transitioned.
func (r *Registry) Sweep(staleAfter time.Duration) []string {
	cutoff := r.now().Add(-staleAfter)

	r.mu.Lock()
	defer r.mu.Unlock()

	var flipped []string
	for name, status := range r.tools {
		if status.Online && status.LastSeen.Before(cutoff) {
			status.Online = false
			flipped = append(flipped, name)
		}
	}
	slices.Sort(flipped)
	return flipped
}
