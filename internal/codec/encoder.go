package codec

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/pion/webrtc/v4/pkg/media/h264reader"

	"fjarsyn/internal/capture"
)

// ============================================================
// ENCODER
// ============================================================

type EncoderConfig struct {
	Bitrate    int
	Framerate  capture.Framerate
	Format     capture.PixelFormat
	FFmpegPath string
	Encoder    string
	GOP        int
}

func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{
		Bitrate:   8_000_000,
		Framerate: capture.FPS30,
		Format:    capture.RGBA8,
		Encoder:   "libx264",
		GOP:       120,
	}
}

// Encoder turns packed frames into H.264 access units, one Annex-B
// payload per picture. The process is restarted whenever the input size
// changes.
type Encoder struct {
	cfg EncoderConfig

	mu   sync.Mutex
	proc *ffmpegProc
	size capture.Size
	aus  chan []byte
	idr  bool
}

func NewEncoder(cfg EncoderConfig) *Encoder {
	if cfg.Encoder == "" {
		cfg.Encoder = "libx264"
	}
	if cfg.GOP <= 0 {
		cfg.GOP = 120
	}
	return &Encoder{cfg: cfg}
}

// Encode feeds one frame and returns the access units ready so far. The
// stream runs a frame or two behind its input.
func (e *Encoder) Encode(pixels []byte, width, height int) ([][]byte, error) {
	size := capture.Size{Width: width, Height: height}
	if size.Empty() {
		return nil, fmt.Errorf("encode: empty frame %s", size)
	}
	if want := size.Bytes(e.cfg.Format); len(pixels) < want {
		return nil, fmt.Errorf("encode: short frame (%d < %d bytes)", len(pixels), want)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.proc == nil || size != e.size || e.idr {
		if err := e.restartLocked(size); err != nil {
			return nil, err
		}
		e.idr = false
	}

	if err := e.proc.write(pixels[:size.Bytes(e.cfg.Format)]); err != nil {
		e.stopLocked()
		return nil, err
	}

	var out [][]byte
	for {
		select {
		case au, ok := <-e.aus:
			if !ok {
				return out, nil
			}
			out = append(out, au)
		default:
			return out, nil
		}
	}
}

func (e *Encoder) restartLocked(size capture.Size) error {
	if e.proc != nil {
		if size != e.size {
			log.Infof("📐 Encoder input %s -> %s, restarting", e.size, size)
		}
		e.stopLocked()
	}

	proc, err := startFFmpeg(e.cfg.FFmpegPath, encoderArgs(e.cfg, size))
	if err != nil {
		return fmt.Errorf("encoder: %w", err)
	}

	e.proc = proc
	e.size = size
	e.aus = make(chan []byte, 64)
	go readAccessUnits(proc, e.aus)
	return nil
}

func (e *Encoder) stopLocked() {
	if e.proc == nil {
		return
	}
	e.proc.stop()
	e.proc = nil
}

// ForceKeyframe makes the next Encode start a fresh stream, which opens
// with an IDR picture.
func (e *Encoder) ForceKeyframe() {
	e.mu.Lock()
	e.idr = e.proc != nil
	e.mu.Unlock()
}

func (e *Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func encoderArgs(cfg EncoderConfig, size capture.Size) []string {
	fps := strconv.Itoa(int(cfg.Framerate))
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", ffmpegPixFmt(cfg.Format),
		"-s", fmt.Sprintf("%dx%d", size.Width, size.Height),
		"-r", fps,
		"-i", "pipe:0",
		// yuv420p needs even dimensions.
		"-vf", "crop=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", cfg.Encoder,
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-b:v", strconv.Itoa(cfg.Bitrate),
		"-g", strconv.Itoa(cfg.GOP),
		"-bf", "0",
		"-pix_fmt", "yuv420p",
		"-flush_packets", "1",
		"-f", "h264",
		"pipe:1",
	}
}

func ffmpegPixFmt(f capture.PixelFormat) string {
	switch f {
	case capture.BGRA8:
		return "bgra"
	case capture.RGBA16:
		return "rgba64le"
	default:
		return "rgba"
	}
}

// readAccessUnits splits the Annex-B stream on stdout into access units.
// When the channel is full the oldest unit is discarded.
func readAccessUnits(proc *ffmpegProc, out chan []byte) {
	defer proc.wait()
	defer close(out)
	splitAccessUnits(proc.stdout, out)
}

// splitAccessUnits emits one Annex-B payload per coded picture. A unit is
// only known to be complete once the first NAL of the next one arrives,
// or the stream ends.
func splitAccessUnits(r io.Reader, out chan []byte) {
	reader, err := h264reader.NewReader(r)
	if err != nil {
		log.Errorf("❌ H.264 reader: %v", err)
		io.Copy(io.Discard, r)
		return
	}

	var au accessUnit
	for {
		nal, err := reader.NextNAL()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warnf("⚠️  H.264 stream ended: %v", err)
			}
			if au.hasSlice {
				pushDropOldest(out, au.take())
			}
			io.Copy(io.Discard, r)
			return
		}
		if au.startsNew(nal.Data) {
			pushDropOldest(out, au.take())
		}
		au.add(nal.Data)
	}
}

func pushDropOldest(out chan []byte, unit []byte) {
	for {
		select {
		case out <- unit:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}

// ============================================================
// ACCESS UNITS
// ============================================================

const (
	nalSlice = 1
	nalIDR   = 5
	nalSEI   = 6
	nalSPS   = 7
	nalPPS   = 8
	nalAUD   = 9
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// accessUnit collects the NAL units of one picture with start codes.
type accessUnit struct {
	buf      []byte
	hasSlice bool
}

// startsNew reports whether nal opens the next picture. Parameter sets,
// SEI and delimiters only follow a slice at a picture boundary; a slice
// with first_mb_in_slice == 0 begins a new picture.
func (a *accessUnit) startsNew(nal []byte) bool {
	if !a.hasSlice || len(nal) == 0 {
		return false
	}
	switch nal[0] & 0x1f {
	case nalAUD, nalSEI, nalSPS, nalPPS:
		return true
	case nalSlice, nalIDR:
		// ue(v) of 0 is a single set bit.
		return len(nal) > 1 && nal[1]&0x80 != 0
	}
	return false
}

func (a *accessUnit) add(nal []byte) {
	if len(nal) == 0 {
		return
	}
	a.buf = append(a.buf, startCode...)
	a.buf = append(a.buf, nal...)
	if t := nal[0] & 0x1f; t == nalSlice || t == nalIDR {
		a.hasSlice = true
	}
}

func (a *accessUnit) take() []byte {
	b := a.buf
	a.buf = nil
	a.hasSlice = false
	return b
}
