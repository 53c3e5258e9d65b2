// Package capture grabs frames from a display on a dedicated OS thread
// and hands them out as leased, packed images.
package capture

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"fjarsyn/internal/buffer"
	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("capture")

// ============================================================
// SESSION STATE
// ============================================================

type State int32

const (
	StateIdle State = iota
	StateConfigured
	StateCapturing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfigured:
		return "Configured"
	case StateCapturing:
		return "Capturing"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// ============================================================
// SESSION
// ============================================================

type Option func(*Session)

func WithPixelFormat(f PixelFormat) Option {
	return func(s *Session) { s.format = f }
}

func WithArena(a *buffer.Arena) Option {
	return func(s *Session) { s.arena = a }
}

func WithFramerate(f Framerate) Option {
	return func(s *Session) { s.framerate = f }
}

// Session binds a source to a capture thread. All methods are safe for
// concurrent use.
type Session struct {
	backend   Backend
	format    PixelFormat
	framerate Framerate
	arena     *buffer.Arena

	mu     sync.Mutex
	state  State
	source *Source
	stream *Stream
	thread *captureThread
}

func NewSession(backend Backend, opts ...Option) *Session {
	s := &Session{
		backend:   backend,
		format:    RGBA8,
		framerate: FPS30,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.arena == nil {
		s.arena = buffer.NewArena(models.ArenaInitialSize)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsCapturing() bool {
	return s.State() == StateCapturing
}

// SetSource binds src. It is rejected while capturing.
func (s *Session) SetSource(src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCapturing {
		return ErrAlreadyCapturing
	}
	s.source = &src
	s.state = StateConfigured
	log.Infof("🖥️  Source selected: %s", src)
	return nil
}

// Start spawns the capture thread and returns once the platform session
// is running or has failed to start.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == StateCapturing:
		return ErrAlreadyCapturing
	case s.source == nil:
		return ErrNoSource
	}

	if err := acquirePlatform(s.backend); err != nil {
		return err
	}

	if s.stream == nil {
		s.stream = newStream(s.framerate, models.FrameQueueDepth)
	}

	t := newCaptureThread(s.backend, *s.source, s.format, s.stream, s.arena)
	if err := t.start(); err != nil {
		releasePlatform(s.backend)
		return err
	}

	s.thread = t
	s.state = StateCapturing
	log.Infof("▶️  Capture started at %s fps", s.stream.framerate)
	return nil
}

// Stop signals the capture thread and waits for it. No frame is produced
// after Stop returns.
func (s *Session) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateCapturing {
		return ErrNotCapturing
	}
	s.stopLocked()
	return nil
}

func (s *Session) stopLocked() {
	s.thread.stop()
	s.thread = nil
	releasePlatform(s.backend)

	if s.stream != nil {
		s.stream.end()
		s.stream = nil
	}
	s.state = StateConfigured
	log.Infof("⏹️  Capture stopped")
}

// CreateStream returns a new frame stream at framerate. An existing stream
// is ended and, while capturing, the frame source is rebuilt at the new
// rate without restarting the session. If the source cannot be reopened
// the session keeps capturing into the previous stream.
func (s *Session) CreateStream(framerate Framerate) (*Stream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := newStream(framerate, models.FrameQueueDepth)

	if s.state == StateCapturing {
		if err := s.thread.replace(st); err != nil {
			// The running stream keeps its frames.
			st.end()
			return nil, err
		}
		s.framerate = framerate
		s.stream = st
		log.Infof("🔁 Stream recreated at %s fps", framerate)
		return st, nil
	}

	if s.stream != nil {
		s.stream.end()
	}
	s.framerate = framerate
	s.stream = st
	return st, nil
}

// Close stops capturing if needed.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateCapturing {
		s.stopLocked()
	}
	if s.stream != nil {
		s.stream.end()
		s.stream = nil
	}
	return nil
}

// ============================================================
// CAPTURE THREAD
// ============================================================

type replaceRequest struct {
	stream *Stream
	ack    chan error
}

type captureThread struct {
	backend Backend
	source  Source
	format  PixelFormat
	arena   *buffer.Arena

	stream   *Stream
	replaceC chan replaceRequest
	quit     chan struct{}
	done     chan struct{}
	started  time.Time
}

func newCaptureThread(b Backend, src Source, format PixelFormat, st *Stream, arena *buffer.Arena) *captureThread {
	return &captureThread{
		backend:  b,
		source:   src,
		format:   format,
		arena:    arena,
		stream:   st,
		replaceC: make(chan replaceRequest),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (t *captureThread) start() error {
	ready := make(chan error, 1)
	go t.run(ready)
	if err := <-ready; err != nil {
		<-t.done
		return err
	}
	return nil
}

func (t *captureThread) stop() {
	close(t.quit)
	<-t.done
}

func (t *captureThread) replace(st *Stream) error {
	req := replaceRequest{stream: st, ack: make(chan error, 1)}
	select {
	case t.replaceC <- req:
		return <-req.ack
	case <-t.done:
		return ErrNotCapturing
	}
}

// run is the event pump. It owns the grabber and staging pipeline and
// never blocks on consumers.
func (t *captureThread) run(ready chan<- error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(t.done)

	grabber, err := t.backend.Open(t.source, t.format)
	if err != nil {
		ready <- platformErr("open source", err)
		return
	}
	defer func() {
		if err := grabber.Close(); err != nil {
			log.Warnf("⚠️  Grabber close: %v", err)
		}
	}()

	pipeline := NewStagingPipeline(t.backend.Device(), t.format, models.PipelineDepth)
	defer pipeline.Reset()

	ticker := time.NewTicker(t.stream.framerate.FrameTime())
	defer ticker.Stop()

	t.started = time.Now()
	ready <- nil

	for {
		select {
		case <-t.quit:
			return

		case req := <-t.replaceC:
			// The current source and stream stay live until the new one opens.
			next, err := t.backend.Open(t.source, t.format)
			if err != nil {
				req.ack <- platformErr("reopen source", err)
				continue
			}
			if err := grabber.Close(); err != nil {
				log.Warnf("⚠️  Grabber close: %v", err)
			}
			grabber = next

			old := t.stream
			t.stream = req.stream
			if old != req.stream {
				old.end()
			}
			pipeline.Reset()
			ticker.Reset(t.stream.framerate.FrameTime())
			req.ack <- nil

		case <-ticker.C:
			t.onFrameArrived(grabber, pipeline)
		}
	}
}

// onFrameArrived runs one staging step. Failures skip the frame.
func (t *captureThread) onFrameArrived(grabber Grabber, pipeline *StagingPipeline) {
	raw, err := grabber.Grab()
	if errors.Is(err, ErrNoFrame) {
		return
	}
	if err != nil {
		log.Warnf("⚠️  Grab failed, skipping frame: %v", err)
		return
	}

	lease, size, err := pipeline.Process(raw, func(n int) buffer.Leased {
		return t.arena.Get(n)
	})
	if err != nil {
		log.Warnf("⚠️  Staging failed, skipping frame: %v", err)
		return
	}
	if lease == nil {
		return
	}

	frame := &Frame{
		Data:       lease,
		Format:     t.format,
		Size:       size,
		Timestamp:  time.Since(t.started),
		Duration:   t.stream.framerate.FrameTime(),
		DirtyRects: raw.DirtyRects,
	}
	if !t.stream.offer(frame) {
		log.Tracef("frame dropped (total %d)", t.stream.Dropped())
	}
}
