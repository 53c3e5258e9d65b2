package buffer

// ============================================================
// POOL
// ============================================================

// Pool is a bounded free-list of independently owned buffers. Use it when
// a buffer is held by something outside the producer's in-order
// lifecycle, such as a codec.
type Pool struct {
	free chan []byte
}

func NewPool(maxBuffers int) *Pool {
	if maxBuffers < 0 {
		maxBuffers = 0
	}
	return &Pool{free: make(chan []byte, maxBuffers)}
}

// GetOrCreate pops a free buffer or allocates one. The result has length
// size and may hold stale bytes.
func (p *Pool) GetOrCreate(size int) *PooledBuffer {
	if size < 0 {
		size = 0
	}

	var buf []byte
	select {
	case buf = <-p.free:
	default:
	}

	if cap(buf) < size {
		buf = make([]byte, size)
	}

	return &PooledBuffer{pool: p, buf: buf[:size]}
}

// Len reports the number of idle buffers.
func (p *Pool) Len() int {
	return len(p.free)
}

// Cap reports the maximum number of idle buffers.
func (p *Pool) Cap() int {
	return cap(p.free)
}

func (p *Pool) put(buf []byte) {
	select {
	case p.free <- buf[:0]:
	default:
		// Full: let the GC have it.
	}
}

// PooledBuffer returns itself to its pool on Release unless taken.
type PooledBuffer struct {
	pool *Pool
	buf  []byte
	done bool
}

func (b *PooledBuffer) Bytes() []byte {
	if b == nil || b.done {
		return nil
	}
	return b.buf
}

func (b *PooledBuffer) Len() int {
	if b == nil || b.done {
		return 0
	}
	return len(b.buf)
}

// Release gives the buffer back. Safe to call more than once.
func (b *PooledBuffer) Release() {
	if b == nil || b.done {
		return
	}
	b.done = true
	b.pool.put(b.buf)
	b.buf = nil
}

// Take detaches the buffer from the pool and returns it.
func (b *PooledBuffer) Take() []byte {
	if b == nil || b.done {
		return nil
	}
	b.done = true
	buf := b.buf
	b.buf = nil
	return buf
}

// Freeze is Take under the Leased name.
func (b *PooledBuffer) Freeze() []byte {
	return b.Take()
}
