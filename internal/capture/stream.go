package capture

import (
	"sync"
	"sync/atomic"
)

// Stream delivers frames from a capture session. Frames are sent without
// blocking; when the consumer falls behind the newest frame is dropped.
type Stream struct {
	framerate Framerate
	ch        chan *Frame

	closed    atomic.Bool
	dropped   atomic.Uint64
	delivered atomic.Uint64
	endOnce   sync.Once
}

func newStream(framerate Framerate, depth int) *Stream {
	return &Stream{framerate: framerate, ch: make(chan *Frame, depth)}
}

// Frames is closed when the session stops or replaces the stream.
func (s *Stream) Frames() <-chan *Frame {
	return s.ch
}

func (s *Stream) Framerate() Framerate {
	return s.framerate
}

func (s *Stream) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Stream) Delivered() uint64 {
	return s.delivered.Load()
}

// Close detaches the consumer. Pending frames are released.
func (s *Stream) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.drain()
}

// offer is only called by the producer.
func (s *Stream) offer(f *Frame) bool {
	if s.closed.Load() {
		f.Release()
		return false
	}
	select {
	case s.ch <- f:
		s.delivered.Add(1)
		return true
	default:
		f.Release()
		s.dropped.Add(1)
		return false
	}
}

// end closes the channel. Only the producer side calls it.
func (s *Stream) end() {
	s.endOnce.Do(func() {
		close(s.ch)
		if s.closed.Load() {
			s.drain()
		}
	})
}

func (s *Stream) drain() {
	for {
		select {
		case f, ok := <-s.ch:
			if !ok {
				return
			}
			f.Release()
		default:
			return
		}
	}
}
