package router

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// fragmentSeparator joins the fragments of a batch into one query.
const fragmentSeparator = " "

// Fragment is one inbound message piece.
type Fragment struct {
	UserID      string
	Text        string
	ReplyHandle string
}

// Batch is the coalesced content of one user's buffer, taken at flush time.
type Batch struct {
	ID          string
	UserID      string
	Fragments   []string
	ReplyHandle string
	Generation  uint64
}

// Query joins the fragments in arrival order.
func (b Batch) Query() string {
	return strings.Join(b.Fragments, fragmentSeparator)
}

// Empty reports whether the batch holds no fragments.
func (b Batch) Empty() bool {
	return len(b.Fragments) == 0
}

// Timer is a cancelable deferred task. Stop is advisory: a timer may still
// fire after Stop returns false.
type Timer interface {
	Stop() bool
}

// userBuffer is the mutable accumulator of one user.
// refs counts goroutines holding or waiting on mu; a buffer with refs > 0
// is never evicted.
type userBuffer struct {
	mu         sync.Mutex
	fragments  []string
	handle     string
	generation uint64
	timer      Timer
	lastAppend time.Time
	refs       int
}

func (ub *userBuffer) pending() bool {
	return len(ub.fragments) > 0
}

// Buffers is the registry of per-user debounce buffers. The registry lock
// is held only to look up or create a buffer; mutation happens under the
// per-user lock so different users never contend.
type Buffers struct {
	mu    sync.Mutex
	users map[string]*userBuffer

	// generations come from one counter shared by all users so a buffer
	// evicted and re-created never reuses a generation a stale timer holds.
	generations atomic.Uint64

	now func() time.Time
}

// NewBuffers creates an empty registry. A nil now uses time.Now.
func NewBuffers(now func() time.Time) *Buffers {
	if now == nil {
		now = time.Now
	}
	return &Buffers{
		users: make(map[string]*userBuffer),
		now:   now,
	}
}

// acquire gets or creates the buffer of userID and locks it.
func (b *Buffers) acquire(userID string) *userBuffer {
	b.mu.Lock()
	ub, ok := b.users[userID]
	if !ok {
		ub = &userBuffer{}
		b.users[userID] = ub
	}
	ub.refs++
	b.mu.Unlock()

	ub.mu.Lock()
	return ub
}

// lookup locks the existing buffer of userID, or returns nil.
func (b *Buffers) lookup(userID string) *userBuffer {
	b.mu.Lock()
	ub, ok := b.users[userID]
	if !ok {
		b.mu.Unlock()
		return nil
	}
	ub.refs++
	b.mu.Unlock()

	ub.mu.Lock()
	return ub
}

func (b *Buffers) release(ub *userBuffer) {
	ub.mu.Unlock()
	b.mu.Lock()
	ub.refs--
	b.mu.Unlock()
}

// Append adds a fragment to the user's buffer and overwrites its reply
// handle. It starts a new generation, cancels the outstanding timer, and
// arms a new one through arm while still holding the user's lock, so
// concurrent appends for one user never leave two live timers. It reports
// whether the fragment opened a new burst.
func (b *Buffers) Append(f Fragment, arm func(generation uint64) Timer) (first bool) {
	ub := b.acquire(f.UserID)
	defer b.release(ub)

	first = !ub.pending()
	ub.fragments = append(ub.fragments, f.Text)
	if f.ReplyHandle != "" {
		ub.handle = f.ReplyHandle
	}
	ub.lastAppend = b.now()
	ub.generation = b.generations.Add(1)

	if ub.timer != nil {
		ub.timer.Stop()
	}
	ub.timer = nil
	if arm != nil {
		ub.timer = arm(ub.generation)
	}
	return first
}

// TakeSnapshotAndClear atomically takes the user's pending fragments and
// reply handle and resets both. The result is empty when nothing is
// pending, so a second call without an intervening append yields nothing.
func (b *Buffers) TakeSnapshotAndClear(userID string) Batch {
	ub := b.lookup(userID)
	if ub == nil {
		return Batch{UserID: userID}
	}
	defer b.release(ub)
	return b.takeLocked(userID, ub)
}

// takeIfCurrent takes the snapshot only when generation is still the
// buffer's current one. ok is false for a stale generation.
func (b *Buffers) takeIfCurrent(userID string, generation uint64) (batch Batch, ok bool) {
	ub := b.lookup(userID)
	if ub == nil {
		return Batch{UserID: userID}, false
	}
	defer b.release(ub)

	if ub.generation != generation {
		return Batch{UserID: userID}, false
	}
	return b.takeLocked(userID, ub), true
}

func (b *Buffers) takeLocked(userID string, ub *userBuffer) Batch {
	batch := Batch{
		UserID:      userID,
		Fragments:   ub.fragments,
		ReplyHandle: ub.handle,
		Generation:  ub.generation,
	}
	ub.fragments = nil
	ub.handle = ""
	if ub.timer != nil {
		ub.timer.Stop()
		ub.timer = nil
	}
	return batch
}

// restore puts a batch that could not be handed off back at the front of
// the user's buffer. Fragments appended since the take stay after it, and
// a newer reply handle wins.
func (b *Buffers) restore(batch Batch) {
	if batch.Empty() {
		return
	}
	ub := b.acquire(batch.UserID)
	defer b.release(ub)

	ub.fragments = append(append([]string(nil), batch.Fragments...), ub.fragments...)
	if ub.handle == "" {
		ub.handle = batch.ReplyHandle
	}
}

// pendingRef identifies a buffer and the generation it held when listed.
type pendingRef struct {
	userID     string
	generation uint64
}

// overdue lists buffers holding fragments whose last append is older than
// cutoff.
func (b *Buffers) overdue(cutoff time.Time) []pendingRef {
	var refs []pendingRef
	for _, id := range b.userIDs() {
		ub := b.lookup(id)
		if ub == nil {
			continue
		}
		if ub.pending() && ub.lastAppend.Before(cutoff) {
			refs = append(refs, pendingRef{userID: id, generation: ub.generation})
		}
		b.release(ub)
	}
	return refs
}

// drainAll stops every timer and takes every pending snapshot.
func (b *Buffers) drainAll() []Batch {
	var batches []Batch
	for _, id := range b.userIDs() {
		ub := b.lookup(id)
		if ub == nil {
			continue
		}
		if ub.timer != nil {
			ub.timer.Stop()
			ub.timer = nil
		}
		if ub.pending() {
			batches = append(batches, b.takeLocked(id, ub))
		}
		b.release(ub)
	}
	return batches
}

// Evict removes buffers that hold nothing, are not in use, and have not
// received a fragment for maxIdle. It returns the number removed.
func (b *Buffers) Evict(maxIdle time.Duration) int {
	cutoff := b.now().Add(-maxIdle)

	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	for id, ub := range b.users {
		if ub.refs > 0 || !ub.mu.TryLock() {
			continue
		}
		idle := !ub.pending() && ub.timer == nil && ub.lastAppend.Before(cutoff)
		ub.mu.Unlock()
		if idle {
			delete(b.users, id)
			removed++
		}
	}
	return removed
}

// Pending returns the number of users with fragments waiting.
func (b *Buffers) Pending() int {
	n := 0
	for _, id := range b.userIDs() {
		ub := b.lookup(id)
		if ub == nil {
			continue
		}
		if ub.pending() {
			n++
		}
		b.release(ub)
	}
	return n
}

// Len returns the number of buffers in the registry, empty ones included.
func (b *Buffers) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.users)
}

// UserIDs returns the users that currently have a buffer.
func (b *Buffers) UserIDs() map[string]struct{} {
	ids := b.userIDs()
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func (b *Buffers) userIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.users))
	for id := range b.users {
		ids = append(ids, id)
	}
	return ids
}
