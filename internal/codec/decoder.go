package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"fjarsyn/internal/buffer"
	"fjarsyn/internal/capture"
	"fjarsyn/models"
)

// ============================================================
// DECODER
// ============================================================

var ErrDecoderClosed = errors.New("decoder closed")

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

type DecoderConfig struct {
	Width      int
	Height     int
	FFmpegPath string
	// Pool recycles output frames. Nil means a private pool.
	Pool *buffer.Pool
}

func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{Width: 1280, Height: 720}
}

// Decoder turns H.264 access units into RGBA frames of a fixed size.
type Decoder struct {
	cfg  DecoderConfig
	size capture.Size
	pool *buffer.Pool

	mu     sync.Mutex
	proc   *ffmpegProc
	frames chan *capture.Frame
	closed bool
	start  time.Time
}

func NewDecoder(cfg DecoderConfig) (*Decoder, error) {
	size := capture.Size{Width: cfg.Width, Height: cfg.Height}
	if size.Empty() {
		return nil, fmt.Errorf("decoder: invalid output size %s", size)
	}
	pool := cfg.Pool
	if pool == nil {
		pool = buffer.NewPool(models.PoolMaxBuffers)
	}

	proc, err := startFFmpeg(cfg.FFmpegPath, decoderArgs(size))
	if err != nil {
		return nil, fmt.Errorf("decoder: %w", err)
	}

	d := &Decoder{
		cfg:    cfg,
		size:   size,
		pool:   pool,
		proc:   proc,
		frames: make(chan *capture.Frame, models.FrameQueueDepth),
		start:  time.Now(),
	}
	go d.readFrames()

	log.Infof("🎞️  Decoder started (%s)", size)
	return d, nil
}

func (d *Decoder) Size() capture.Size {
	return d.size
}

// Decode feeds one payload and returns the next decoded frame if one is
// ready, or nil. The caller owns the returned frame.
func (d *Decoder) Decode(payload []byte) (*capture.Frame, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrDecoderClosed
	}
	proc := d.proc
	d.mu.Unlock()

	if len(payload) > 0 {
		if !hasStartCode(payload) {
			payload = append(append([]byte(nil), annexBStartCode...), payload...)
		}
		if err := proc.write(payload); err != nil {
			return nil, err
		}
	}

	select {
	case f, ok := <-d.frames:
		if !ok {
			return nil, ErrDecoderClosed
		}
		return f, nil
	default:
		return nil, nil
	}
}

func (d *Decoder) readFrames() {
	defer d.proc.wait()
	defer close(d.frames)

	n := d.size.Bytes(capture.RGBA8)
	var last time.Duration
	for {
		pb := d.pool.GetOrCreate(n)
		if _, err := io.ReadFull(d.proc.stdout, pb.Bytes()); err != nil {
			pb.Release()
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Warnf("⚠️  Decoder output ended: %v", err)
			}
			io.Copy(io.Discard, d.proc.stdout)
			return
		}

		ts := time.Since(d.start)
		f := &capture.Frame{
			Data:      pb,
			Format:    capture.RGBA8,
			Size:      d.size,
			Timestamp: ts,
			Duration:  ts - last,
		}
		last = ts

		for {
			select {
			case d.frames <- f:
			default:
				select {
				case old := <-d.frames:
					old.Release()
				default:
				}
				continue
			}
			break
		}
	}
}

// Close stops ffmpeg and releases frames nobody collected.
func (d *Decoder) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.proc.stop()
	for f := range d.frames {
		f.Release()
	}
	log.Infof("🛑 Decoder stopped")
}

func hasStartCode(b []byte) bool {
	return bytes.HasPrefix(b, annexBStartCode) || bytes.HasPrefix(b, annexBStartCode[1:])
}

func decoderArgs(size capture.Size) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-fflags", "nobuffer",
		"-flags", "low_delay",
		"-f", "h264",
		"-i", "pipe:0",
		"-vf", "scale=" + strconv.Itoa(size.Width) + ":" + strconv.Itoa(size.Height),
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"pipe:1",
	}
}
