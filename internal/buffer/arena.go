// Package buffer hands out reusable byte leases for frame payloads.
//
// Leases may contain bytes from a previous tenant. Callers write before
// they read.
package buffer

import (
	"sync"

	"fjarsyn/internal/logging"
)

var log = logging.New("buffer")

// ============================================================
// ARENA
// ============================================================

// Arena carves leases out of one growable region used as a ring. It
// expects leases to be returned roughly in the order they were granted:
// space is reclaimed from the oldest live lease forward, so a producer
// that keeps N leases in flight needs room for N and no more.
type Arena struct {
	mu     sync.Mutex
	region []byte
	off    int
	live   []*extent
	gen    uint64
	grows  int
	held   int
}

// extent is the part of the region a lease covers.
type extent struct {
	start, end int
	released   bool
}

func NewArena(initial int) *Arena {
	if initial < 0 {
		initial = 0
	}
	return &Arena{region: make([]byte, initial)}
}

// Get returns a lease of exactly size bytes.
func (a *Arena) Get(size int) *Lease {
	if size < 0 {
		size = 0
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if size == 0 {
		return &Lease{arena: a, gen: a.gen, buf: a.region[:0:0]}
	}

	start, ok := a.fit(size)
	if !ok {
		a.grow(size)
		start = 0
	}

	ext := &extent{start: start, end: start + size}
	a.live = append(a.live, ext)
	a.off = ext.end
	a.held++

	buf := a.region[ext.start:ext.end:ext.end]
	return &Lease{arena: a, gen: a.gen, ext: ext, buf: buf}
}

// fit finds where size bytes can go without touching a live extent.
func (a *Arena) fit(size int) (int, bool) {
	if len(a.live) == 0 {
		a.off = 0
		return 0, size <= len(a.region)
	}

	head := a.live[0].start
	if a.live[len(a.live)-1].start < head {
		// Wrapped: free space lies between the write offset and the head.
		return a.off, a.off+size <= head
	}
	if a.off+size <= len(a.region) {
		return a.off, true
	}
	return 0, size <= head
}

// grow replaces the region. Leases still out against the old region keep
// it alive and are forgotten when released.
func (a *Arena) grow(size int) {
	newCap := 2 * len(a.region)
	if newCap < size {
		newCap = size
	}

	log.Debugf("arena too small, reallocating (cap %d, requested %d, new cap %d)",
		len(a.region), size, newCap)

	a.retire()
	a.region = make([]byte, newCap)
	a.grows++
}

// retire forgets every live extent of the current region.
func (a *Arena) retire() {
	if len(a.live) > 0 {
		a.gen++
	}
	a.live = nil
	a.held = 0
	a.off = 0
}

// Cap reports the size of the current backing region.
func (a *Arena) Cap() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.region)
}

// Grows reports how many times the backing region was reallocated.
func (a *Arena) Grows() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.grows
}

// Outstanding reports the leases of the current region still held.
func (a *Arena) Outstanding() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.held
}

func (a *Arena) release(l *Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.ext == nil || l.gen != a.gen {
		return
	}
	l.ext.released = true
	a.held--

	// Out of order returns are reclaimed once everything before them is back.
	n := 0
	for n < len(a.live) && a.live[n].released {
		a.live[n] = nil
		n++
	}
	a.live = a.live[n:]
	if len(a.live) == 0 {
		a.live = nil
		a.off = 0
	}
}

// detach retires the current region so frozen bytes are never handed out
// again. The next Get allocates a fresh region of the same size.
func (a *Arena) detach(l *Lease) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if l.ext == nil || l.gen != a.gen {
		return
	}
	a.gen++
	a.region = make([]byte, len(a.region))
	a.live = nil
	a.held = 0
	a.off = 0
}

// ============================================================
// LEASE
// ============================================================

type leaseState uint8

const (
	leaseHeld leaseState = iota
	leaseReleased
	leaseFrozen
)

// Lease grants exclusive use of an arena slice until Release or Freeze.
// A Lease is not safe for concurrent use.
type Lease struct {
	arena *Arena
	gen   uint64
	ext   *extent
	buf   []byte
	state leaseState
}

// Bytes returns the leased slice, or nil once released or frozen.
func (l *Lease) Bytes() []byte {
	if l == nil || l.state != leaseHeld {
		return nil
	}
	return l.buf
}

func (l *Lease) Len() int {
	if l == nil {
		return 0
	}
	return len(l.buf)
}

// Release returns the bytes to the arena. Calling it again, or after
// Freeze, does nothing.
func (l *Lease) Release() {
	if l == nil || l.state != leaseHeld {
		return
	}
	l.state = leaseReleased
	l.arena.release(l)
	l.buf = nil
}

// Freeze detaches the bytes from the arena for good and returns them.
func (l *Lease) Freeze() []byte {
	if l == nil || l.state != leaseHeld {
		return nil
	}
	l.state = leaseFrozen
	l.arena.detach(l)
	buf := l.buf
	l.buf = nil
	return buf
}
