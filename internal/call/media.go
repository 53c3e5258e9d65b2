package call

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fjarsyn/internal/capture"
)

const keyframeCooldown = 2 * time.Second

// ============================================================
// CODEC COLLABORATORS
// ============================================================

// FrameEncoder returns zero or more Annex-B access units per call, one
// per coded picture.
type FrameEncoder interface {
	Encode(pixels []byte, width, height int) ([][]byte, error)
}

// KeyframeForcer is implemented by encoders that can start a new GOP on
// demand.
type KeyframeForcer interface {
	ForceKeyframe()
}

type FrameDecoder interface {
	Decode(payload []byte) (*capture.Frame, error)
}

// ============================================================
// SENDER
// ============================================================

// Sender pumps captured frames through the encoder into the attached
// sink. Frames arriving while nothing is attached are released unsent.
type Sender struct {
	enc FrameEncoder

	mu           sync.Mutex
	sink         SampleSink
	lastKeyframe time.Time

	sent    atomic.Uint64
	skipped atomic.Uint64
}

func NewSender(enc FrameEncoder) *Sender {
	return &Sender{enc: enc}
}

func (s *Sender) Attach(sink SampleSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
	s.RequestKeyframe()
}

func (s *Sender) Detach() {
	s.mu.Lock()
	s.sink = nil
	s.mu.Unlock()
}

func (s *Sender) Sent() uint64    { return s.sent.Load() }
func (s *Sender) Skipped() uint64 { return s.skipped.Load() }

// RequestKeyframe forwards a keyframe request to the encoder, at most once
// per cooldown.
func (s *Sender) RequestKeyframe() {
	f, ok := s.enc.(KeyframeForcer)
	if !ok {
		return
	}

	s.mu.Lock()
	if time.Since(s.lastKeyframe) < keyframeCooldown {
		s.mu.Unlock()
		return
	}
	s.lastKeyframe = time.Now()
	s.mu.Unlock()

	log.Debugf("🔑 Keyframe requested")
	f.ForceKeyframe()
}

// PumpFrames runs until ctx ends or frames closes.
func (s *Sender) PumpFrames(ctx context.Context, frames <-chan *capture.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			s.handleFrame(f)
		}
	}
}

func (s *Sender) handleFrame(f *capture.Frame) {
	defer f.Release()

	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()

	if sink == nil {
		s.skipped.Add(1)
		return
	}

	payloads, err := s.enc.Encode(f.Pixels(), f.Size.Width, f.Size.Height)
	if err != nil {
		log.Warnf("⚠️  Encode failed, frame skipped: %v", err)
		s.skipped.Add(1)
		return
	}

	// Each payload is one access unit and advances the RTP clock by a frame.
	for _, p := range payloads {
		if err := sink.SendSample(p, f.Duration); err != nil {
			log.Warnf("⚠️  Send sample: %v", err)
			return
		}
	}
	if len(payloads) > 0 {
		s.sent.Add(1)
	}
}

// ============================================================
// RECEIVER
// ============================================================

// Receiver decodes remote payloads and hands finished frames to sink,
// which then owns them.
type Receiver struct {
	dec  FrameDecoder
	sink func(*capture.Frame)

	decoded atomic.Uint64
	errors  atomic.Uint64
}

func NewReceiver(dec FrameDecoder, sink func(*capture.Frame)) *Receiver {
	return &Receiver{dec: dec, sink: sink}
}

func (r *Receiver) Decoded() uint64 { return r.decoded.Load() }

func (r *Receiver) HandleSample(payload []byte) {
	frame, err := r.dec.Decode(payload)
	if err != nil {
		if r.errors.Add(1)%100 == 1 {
			log.Warnf("⚠️  Decode failed: %v", err)
		}
		return
	}
	if frame == nil {
		return
	}
	r.decoded.Add(1)
	if r.sink == nil {
		frame.Release()
		return
	}
	r.sink(frame)
}
