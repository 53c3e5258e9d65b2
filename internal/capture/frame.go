package capture

import (
	"fmt"
	"image"
	"strings"
	"time"

	"fjarsyn/internal/buffer"
)

// ============================================================
// PIXEL FORMAT
// ============================================================

type PixelFormat uint8

const (
	RGBA8 PixelFormat = iota
	BGRA8
	RGBA16
)

func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case RGBA16:
		return 8
	default:
		return 4
	}
}

func (f PixelFormat) String() string {
	switch f {
	case RGBA8:
		return "RGBA8"
	case BGRA8:
		return "BGRA8"
	case RGBA16:
		return "RGBA16"
	}
	return fmt.Sprintf("PixelFormat(%d)", uint8(f))
}

func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "RGBA8":
		return RGBA8, nil
	case "BGRA8":
		return BGRA8, nil
	case "RGBA16":
		return RGBA16, nil
	}
	return RGBA8, fmt.Errorf("unknown pixel format %q", s)
}

// ============================================================
// GEOMETRY
// ============================================================

type Size struct {
	Width  int
	Height int
}

func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Bytes is the packed byte length of a frame of this size.
func (s Size) Bytes(f PixelFormat) int {
	if s.Empty() {
		return 0
	}
	return s.Width * s.Height * f.BytesPerPixel()
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

func SizeOf(r image.Rectangle) Size {
	return Size{Width: r.Dx(), Height: r.Dy()}
}

type Rect struct {
	X, Y          int
	Width, Height int
}

// ============================================================
// FRAME
// ============================================================

// Frame is one packed image. It is consumed once: the consumer either
// calls Release or keeps the bytes via Freeze.
type Frame struct {
	Data       buffer.Leased
	Format     PixelFormat
	Size       Size
	Timestamp  time.Duration
	Duration   time.Duration
	DirtyRects []Rect
}

func (f *Frame) Pixels() []byte {
	if f == nil || f.Data == nil {
		return nil
	}
	return f.Data.Bytes()
}

func (f *Frame) Release() {
	if f == nil || f.Data == nil {
		return
	}
	f.Data.Release()
}

// Freeze detaches the pixels from their recycling source.
func (f *Frame) Freeze() []byte {
	if f == nil || f.Data == nil {
		return nil
	}
	return f.Data.Freeze()
}
