package buffer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaReuseBoundedByDistinctGrowth(t *testing.T) {
	a := NewArena(16)

	sizes := []int{8, 16, 8, 32, 32, 4, 32, 64, 8, 64}
	for _, size := range sizes {
		l := a.Get(size)
		require.Len(t, l.Bytes(), size)
		l.Release()
	}

	// Only 32 and 64 exceeded the capacity seen before them.
	assert.Equal(t, 2, a.Grows())
	assert.Equal(t, 64, a.Cap())
	assert.Equal(t, 0, a.Outstanding())
}

func TestArenaReusesSameBytes(t *testing.T) {
	a := NewArena(64)

	first := a.Get(32)
	p := &first.Bytes()[0]
	first.Bytes()[0] = 0xAB
	first.Release()

	second := a.Get(32)
	defer second.Release()
	assert.Same(t, p, &second.Bytes()[0])
	// Stale bytes from the previous tenant are visible.
	assert.Equal(t, byte(0xAB), second.Bytes()[0])
}

func TestArenaConcurrentLeasesDoNotOverlap(t *testing.T) {
	a := NewArena(64)

	l1 := a.Get(16)
	l2 := a.Get(16)
	for i := range l1.Bytes() {
		l1.Bytes()[i] = 1
	}
	for i := range l2.Bytes() {
		l2.Bytes()[i] = 2
	}
	for _, b := range l1.Bytes() {
		require.Equal(t, byte(1), b)
	}
	assert.Equal(t, 2, a.Outstanding())

	l1.Release()
	l2.Release()
	assert.Equal(t, 0, a.Outstanding())
}

func TestArenaGrowsWhileLeasesOutstanding(t *testing.T) {
	a := NewArena(16)

	old := a.Get(16)
	old.Bytes()[0] = 7

	big := a.Get(32)
	assert.Equal(t, 1, a.Grows())
	assert.Equal(t, byte(7), old.Bytes()[0])

	old.Release()
	assert.Equal(t, 1, a.Outstanding())
	big.Release()
	assert.Equal(t, 0, a.Outstanding())
}

func TestFreezeIsTerminal(t *testing.T) {
	a := NewArena(32)

	l := a.Get(8)
	copy(l.Bytes(), "frozen!!")
	frozen := l.Freeze()
	require.Equal(t, "frozen!!", string(frozen))

	assert.Nil(t, l.Bytes())
	l.Release()
	assert.Nil(t, l.Freeze())

	for i := 0; i < 4; i++ {
		next := a.Get(8)
		copy(next.Bytes(), "xxxxxxxx")
		next.Release()
	}
	assert.Equal(t, "frozen!!", string(frozen))
	assert.Equal(t, 0, a.Outstanding())
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := NewArena(16)

	l := a.Get(8)
	l.Release()
	l.Release()
	assert.Equal(t, 0, a.Outstanding())

	var nilLease *Lease
	nilLease.Release()
	assert.Nil(t, nilLease.Bytes())
}

func TestArenaPipelinedLeasesStayBounded(t *testing.T) {
	const frame = 1024
	a := NewArena(frame)

	prev := a.Get(frame)
	for i := 0; i < 1000; i++ {
		next := a.Get(frame)
		next.Bytes()[0] = byte(i)
		prev.Release()
		prev = next
	}
	prev.Release()

	assert.LessOrEqual(t, a.Grows(), 1)
	assert.Equal(t, 2*frame, a.Cap())
	assert.Equal(t, 0, a.Outstanding())
}

func TestArenaDepthThreeWrapsWithoutOverlap(t *testing.T) {
	const frame = 100
	a := NewArena(3 * frame)

	var inflight []*Lease
	for i := 0; i < 500; i++ {
		l := a.Get(frame)
		for j := range l.Bytes() {
			l.Bytes()[j] = byte(i)
		}
		inflight = append(inflight, l)
		if len(inflight) == 3 {
			for k, held := range inflight {
				require.Equal(t, byte(i-2+k), held.Bytes()[0])
				require.Equal(t, byte(i-2+k), held.Bytes()[frame-1])
			}
			inflight[0].Release()
			inflight = inflight[1:]
		}
	}

	assert.Equal(t, 0, a.Grows())
	assert.Equal(t, 2, a.Outstanding())
}

func TestArenaReclaimsOutOfOrderReturns(t *testing.T) {
	a := NewArena(30)

	l1 := a.Get(10)
	l2 := a.Get(10)
	l3 := a.Get(10)

	// Returning the middle lease first frees nothing at the head.
	l2.Release()
	assert.Equal(t, 2, a.Outstanding())

	// Once the head is back both extents are reclaimed and the ring wraps.
	l1.Release()
	l4 := a.Get(20)
	assert.Equal(t, 0, a.Grows())
	p := &l4.Bytes()[0]
	assert.NotSame(t, &l3.Bytes()[0], p)

	for i := range l4.Bytes() {
		l4.Bytes()[i] = 4
	}
	for _, b := range l3.Bytes() {
		require.NotEqual(t, byte(4), b)
	}

	// Ring is full: the next lease needs a new region.
	l5 := a.Get(5)
	assert.Equal(t, 1, a.Grows())

	l3.Release()
	l4.Release()
	l5.Release()
	assert.Equal(t, 0, a.Outstanding())
}
