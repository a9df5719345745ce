package stream

import (
	"context"
	"sync"
	"time"
)

// StopRegistry records user-issued stop requests per channel. A request
// outlives the message that raised it until an active stream consumes it or
// the janitor sweeps it, so a stop issued while no stream is running just
// clears instead of cancelling the next one.
type StopRegistry struct {
	mu     sync.RWMutex
	stops  map[string]time.Time
	maxAge time.Duration
}

// NewStopRegistry builds a registry whose entries expire after maxAge
// (default 5 minutes).
func NewStopRegistry(maxAge time.Duration) *StopRegistry {
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &StopRegistry{
		stops:  make(map[string]time.Time),
		maxAge: maxAge,
	}
}

// RequestStop marks the channel as stop-requested. Repeated requests just
// refresh the timestamp.
func (r *StopRegistry) RequestStop(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops[channelID] = time.Now().UTC()
}

// Has reports whether an unexpired stop request is pending for the channel
// without consuming it.
func (r *StopRegistry) Has(channelID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	at, ok := r.stops[channelID]
	return ok && time.Since(at) <= r.maxAge
}

// Take consumes a pending stop request, reporting whether one was present.
// Only one observer wins a given request.
func (r *StopRegistry) Take(channelID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	at, ok := r.stops[channelID]
	if !ok {
		return false
	}
	delete(r.stops, channelID)
	return time.Since(at) <= r.maxAge
}

// Clear drops any pending request for the channel. Clearing an absent
// request is a no-op.
func (r *StopRegistry) Clear(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.stops, channelID)
}

// Count returns the number of pending stop requests.
func (r *StopRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stops)
}

// CleanupOld removes requests older than the registry's max age and returns
// how many were dropped.
func (r *StopRegistry) CleanupOld() int {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for ch, at := range r.stops {
		if now.Sub(at) > r.maxAge {
			delete(r.stops, ch)
			dropped++
		}
	}
	return dropped
}

// StartJanitor sweeps expired requests until ctx is done.
func (r *StopRegistry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.CleanupOld()
			}
		}
	}()
}
