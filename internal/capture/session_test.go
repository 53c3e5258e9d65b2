package capture

import (
	"errors"
	"image"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	device   Device
	initErr  error
	openErr  error
	inits    atomic.Int32
	shutdown atomic.Int32
	opens    atomic.Int32

	mu       sync.Mutex
	grabbers []*fakeGrabber
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{device: NewMemoryDevice()}
}

func (b *fakeBackend) Init() error {
	b.inits.Add(1)
	return b.initErr
}

func (b *fakeBackend) Shutdown() { b.shutdown.Add(1) }

func (b *fakeBackend) Device() Device { return b.device }

func (b *fakeBackend) Sources() ([]Source, error) {
	return []Source{{ID: 1, Name: "fake", Bounds: image.Rect(0, 0, 4, 4)}}, nil
}

func (b *fakeBackend) Open(src Source, format PixelFormat) (Grabber, error) {
	b.opens.Add(1)
	if b.openErr != nil {
		return nil, b.openErr
	}
	g := &fakeGrabber{size: SizeOf(src.Bounds)}
	b.mu.Lock()
	b.grabbers = append(b.grabbers, g)
	b.mu.Unlock()
	return g, nil
}

type fakeGrabber struct {
	size   Size
	n      atomic.Int32
	closed atomic.Bool
}

func (g *fakeGrabber) Grab() (RawFrame, error) {
	n := g.n.Add(1)
	if n%5 == 0 {
		return RawFrame{}, errors.New("transient")
	}
	return solidFrame(g.size, byte(n)), nil
}

func (g *fakeGrabber) Close() error {
	g.closed.Store(true)
	return nil
}

func fakeSource() Source {
	return Source{ID: 1, Name: "fake", Bounds: image.Rect(0, 0, 4, 4)}
}

func TestSessionStateErrors(t *testing.T) {
	s := NewSession(newFakeBackend())
	assert.Equal(t, StateIdle, s.State())

	assert.ErrorIs(t, s.Start(), ErrNoSource)
	assert.ErrorIs(t, s.Stop(), ErrNotCapturing)
	assert.Equal(t, StateIdle, s.State())

	require.NoError(t, s.SetSource(fakeSource()))
	assert.Equal(t, StateConfigured, s.State())

	require.NoError(t, s.Start())
	defer s.Close()
	assert.True(t, s.IsCapturing())
	assert.ErrorIs(t, s.Start(), ErrAlreadyCapturing)
	assert.ErrorIs(t, s.SetSource(fakeSource()), ErrAlreadyCapturing)

	require.NoError(t, s.Stop())
	assert.Equal(t, StateConfigured, s.State())
	assert.ErrorIs(t, s.Stop(), ErrNotCapturing)
}

func TestSessionDeliversFrames(t *testing.T) {
	b := newFakeBackend()
	s := NewSession(b, WithFramerate(FPS200))
	require.NoError(t, s.SetSource(fakeSource()))

	st, err := s.CreateStream(FPS200)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	got := 0
	timeout := time.After(2 * time.Second)
	for got < 5 {
		select {
		case f, ok := <-st.Frames():
			require.True(t, ok)
			assert.Equal(t, Size{Width: 4, Height: 4}, f.Size)
			assert.Equal(t, RGBA8, f.Format)
			assert.Len(t, f.Pixels(), 64)
			assert.Equal(t, FPS200.FrameTime(), f.Duration)
			f.Release()
			got++
		case <-timeout:
			t.Fatalf("only %d frames arrived", got)
		}
	}

	require.NoError(t, s.Stop())

	// The channel is closed after Stop; nothing arrives afterwards.
	for f := range st.Frames() {
		f.Release()
	}
	_, ok := <-st.Frames()
	assert.False(t, ok)
}

func TestSessionDropsNewestWhenFull(t *testing.T) {
	s := NewSession(newFakeBackend())
	require.NoError(t, s.SetSource(fakeSource()))
	st, err := s.CreateStream(FPS200)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool { return st.Dropped() > 0 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())

	assert.LessOrEqual(t, len(st.Frames()), 2)
	assert.GreaterOrEqual(t, st.Delivered(), uint64(2))
	for f := range st.Frames() {
		f.Release()
	}
}

func TestSessionStopJoinsThread(t *testing.T) {
	b := newFakeBackend()
	s := NewSession(b)
	require.NoError(t, s.SetSource(fakeSource()))
	st, err := s.CreateStream(FPS200)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, s.Stop())

	b.mu.Lock()
	g := b.grabbers[0]
	b.mu.Unlock()
	grabs := g.n.Load()
	assert.True(t, g.closed.Load())

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, grabs, g.n.Load(), "no grab may happen after Stop")
	for f := range st.Frames() {
		f.Release()
	}
}

func TestSessionCreateStreamWhileCapturing(t *testing.T) {
	b := newFakeBackend()
	s := NewSession(b)
	require.NoError(t, s.SetSource(fakeSource()))
	first, err := s.CreateStream(FPS60)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Close()

	second, err := s.CreateStream(FPS200)
	require.NoError(t, err)
	assert.True(t, s.IsCapturing())
	assert.Equal(t, int32(2), b.opens.Load())
	assert.Equal(t, FPS200, second.Framerate())

	// The first stream is ended.
	for f := range first.Frames() {
		f.Release()
	}

	select {
	case f := <-second.Frames():
		require.NotNil(t, f)
		f.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("no frame on the replacement stream")
	}
}

func TestSessionReopenFailureKeepsCurrentStream(t *testing.T) {
	b := newFakeBackend()
	s := NewSession(b)
	require.NoError(t, s.SetSource(fakeSource()))
	first, err := s.CreateStream(FPS60)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Close()

	b.openErr = errors.New("device lost")
	second, err := s.CreateStream(FPS30)
	var perr *PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "reopen source", perr.Op)
	assert.Nil(t, second)

	assert.Equal(t, StateCapturing, s.State())
	assert.ErrorIs(t, s.Start(), ErrAlreadyCapturing)

	// Frames keep flowing into the stream created before the failure.
	for i := 0; i < 2; i++ {
		select {
		case f, ok := <-first.Frames():
			require.True(t, ok, "stream ended after failed replace")
			f.Release()
		case <-time.After(2 * time.Second):
			t.Fatal("no frame after failed replace")
		}
	}

	require.NoError(t, s.Stop())
	assert.Equal(t, StateConfigured, s.State())
	assert.Equal(t, 0, platformRefs(b))
}

func TestSessionOpenFailure(t *testing.T) {
	b := newFakeBackend()
	b.openErr = errors.New("device lost")
	s := NewSession(b)
	require.NoError(t, s.SetSource(fakeSource()))

	err := s.Start()
	var perr *PlatformError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "open source", perr.Op)
	assert.Equal(t, StateConfigured, s.State())
	assert.Equal(t, 0, platformRefs(b))
}

func TestPlatformGuardIsRefCounted(t *testing.T) {
	b := newFakeBackend()

	s1 := NewSession(b)
	s2 := NewSession(b)
	require.NoError(t, s1.SetSource(fakeSource()))
	require.NoError(t, s2.SetSource(fakeSource()))

	require.NoError(t, s1.Start())
	require.NoError(t, s2.Start())
	assert.Equal(t, int32(1), b.inits.Load())
	assert.Equal(t, 2, platformRefs(b))

	require.NoError(t, s1.Stop())
	assert.Equal(t, int32(0), b.shutdown.Load())
	require.NoError(t, s2.Stop())
	assert.Equal(t, int32(1), b.shutdown.Load())
	assert.Equal(t, 0, platformRefs(b))
}

func TestPlatformInitFailure(t *testing.T) {
	b := newFakeBackend()
	b.initErr = ErrNoDisplays
	s := NewSession(b)
	require.NoError(t, s.SetSource(fakeSource()))

	err := s.Start()
	assert.ErrorIs(t, err, ErrNoDisplays)
	assert.Equal(t, StateConfigured, s.State())
}

func TestListSourcesWithPattern(t *testing.T) {
	b := NewPatternBackend(8, 6)
	sources, err := ListSources(b)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, Size{Width: 8, Height: 6}, SizeOf(sources[0].Bounds))
	assert.Equal(t, 0, platformRefs(b))
}

func TestPatternSessionEndToEnd(t *testing.T) {
	b := NewPatternBackend(16, 8)
	sources, err := ListSources(b)
	require.NoError(t, err)

	s := NewSession(b, WithPixelFormat(BGRA8))
	require.NoError(t, s.SetSource(sources[0]))
	st, err := s.CreateStream(FPS200)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	defer s.Close()

	select {
	case f := <-st.Frames():
		assert.Equal(t, BGRA8, f.Format)
		assert.Len(t, f.Pixels(), 16*8*4)
		assert.Equal(t, byte(0xff), f.Pixels()[3])
		f.Release()
	case <-time.After(2 * time.Second):
		t.Fatal("no frame")
	}
}
