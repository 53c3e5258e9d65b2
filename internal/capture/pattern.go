package capture

import (
	"fmt"
	"image"
)

// ============================================================
// PATTERN BACKEND
// ============================================================

// patternBackend renders a moving gradient. It needs no display, which
// makes it useful on headless hosts.
type patternBackend struct {
	size   Size
	device Device
}

func NewPatternBackend(width, height int) Backend {
	return &patternBackend{size: Size{Width: width, Height: height}, device: NewMemoryDevice()}
}

func (b *patternBackend) Init() error {
	if b.size.Empty() {
		return fmt.Errorf("pattern size %s", b.size)
	}
	return nil
}

func (b *patternBackend) Shutdown() {}

func (b *patternBackend) Device() Device {
	return b.device
}

func (b *patternBackend) Sources() ([]Source, error) {
	return []Source{{
		ID:     0,
		Name:   "Test pattern",
		Bounds: image.Rect(0, 0, b.size.Width, b.size.Height),
	}}, nil
}

func (b *patternBackend) Open(src Source, format PixelFormat) (Grabber, error) {
	if _, err := needsSwizzle(RGBA8, format); err != nil {
		return nil, err
	}
	size := SizeOf(src.Bounds)
	if size.Empty() {
		size = b.size
	}
	return &patternGrabber{size: size, pix: make([]byte, size.Bytes(RGBA8))}, nil
}

type patternGrabber struct {
	size Size
	pix  []byte
	tick int
}

func (g *patternGrabber) Grab() (RawFrame, error) {
	g.tick++
	w := g.size.Width
	for y := 0; y < g.size.Height; y++ {
		for x := 0; x < w; x++ {
			i := (y*w + x) * 4
			g.pix[i] = byte(x + g.tick)
			g.pix[i+1] = byte(y + g.tick)
			g.pix[i+2] = byte(g.tick)
			g.pix[i+3] = 0xff
		}
	}
	return RawFrame{Size: g.size, Format: RGBA8, Stride: w * 4, Pix: g.pix}, nil
}

func (g *patternGrabber) Close() error {
	return nil
}
