package stream

import (
	"sync"
	"time"
)

// PendingTrigger is a deferred generation request parked behind a busy
// channel. Dispatch runs the full trigger handling once the channel frees
// up; it must release the lock itself when done.
type PendingTrigger struct {
	MessageID  string
	EnqueuedAt time.Time
	Dispatch   func()
}

// AcquireResult reports the outcome of a lock attempt.
type AcquireResult struct {
	Acquired        bool
	Stolen          bool   // the previous holder exceeded the stale age
	Queued          bool   // the trigger was parked behind the holder
	HolderMessageID string // set when the channel stayed busy
}

type channelLock struct {
	locked    bool
	lockedAt  time.Time
	messageID string
	queue     []*PendingTrigger
}

// LockTable serializes generation per channel. At most one stream runs per
// channel; contending triggers either queue (when they would have produced a
// reply) or drop. Locks held past the stale age are presumed leaked by a
// crashed holder and get stolen.
type LockTable struct {
	mu       sync.Mutex
	locks    map[string]*channelLock
	staleAge time.Duration
}

// NewLockTable builds a table that treats locks older than staleAge as
// abandoned (default 3 minutes).
func NewLockTable(staleAge time.Duration) *LockTable {
	if staleAge <= 0 {
		staleAge = 3 * time.Minute
	}
	return &LockTable{
		locks:    make(map[string]*channelLock),
		staleAge: staleAge,
	}
}

// Acquire attempts to take the channel lock for the trigger identified by
// messageID. When the channel is busy and pending is non-nil the trigger is
// queued for dispatch on release; a nil pending means the caller drops the
// trigger. The check-then-queue decision is atomic, so a trigger can never
// be parked behind a lock that was already released.
func (t *LockTable) Acquire(channelID, messageID string, pending *PendingTrigger) AcquireResult {
	now := time.Now().UTC()
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[channelID]
	if !ok {
		l = &channelLock{}
		t.locks[channelID] = l
	}

	if l.locked && now.Sub(l.lockedAt) > t.staleAge {
		// Stale holder: whatever was waiting on it is equally dead.
		l.queue = nil
		l.lockedAt = now
		l.messageID = messageID
		return AcquireResult{Acquired: true, Stolen: true}
	}

	if l.locked {
		res := AcquireResult{HolderMessageID: l.messageID}
		if pending != nil {
			if pending.EnqueuedAt.IsZero() {
				pending.EnqueuedAt = now
			}
			l.queue = append(l.queue, pending)
			res.Queued = true
		}
		return res
	}

	l.locked = true
	l.lockedAt = now
	l.messageID = messageID
	return AcquireResult{Acquired: true}
}

// Release frees the channel lock. If triggers are queued, the lock transfers
// to the oldest one and it is returned for dispatch; the caller runs
// Dispatch on a fresh goroutine so release never recurses into generation.
func (t *LockTable) Release(channelID string) *PendingTrigger {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.locks[channelID]
	if !ok || !l.locked {
		return nil
	}
	if len(l.queue) == 0 {
		delete(t.locks, channelID)
		return nil
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	l.lockedAt = time.Now().UTC()
	l.messageID = next.MessageID
	return next
}

// Locked reports whether the channel currently holds a live lock.
func (t *LockTable) Locked(channelID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[channelID]
	return ok && l.locked
}

// Stats returns the number of held locks and queued triggers across all
// channels.
func (t *LockTable) Stats() (locked, queued int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, l := range t.locks {
		if l.locked {
			locked++
		}
		queued += len(l.queue)
	}
	return locked, queued
}
