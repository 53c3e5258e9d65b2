package capture

import (
	"fmt"
	"image"

	"github.com/kbinani/screenshot"
)

// ============================================================
// SCREEN BACKEND
// ============================================================

type screenBackend struct {
	device Device
}

// NewScreenBackend captures whole displays.
func NewScreenBackend() Backend {
	return &screenBackend{device: NewMemoryDevice()}
}

func (b *screenBackend) Init() error {
	if screenshot.NumActiveDisplays() == 0 {
		return ErrNoDisplays
	}
	return nil
}

func (b *screenBackend) Shutdown() {}

func (b *screenBackend) Device() Device {
	return b.device
}

func (b *screenBackend) Sources() ([]Source, error) {
	n := screenshot.NumActiveDisplays()
	if n == 0 {
		return nil, ErrNoDisplays
	}

	sources := make([]Source, 0, n)
	for i := 0; i < n; i++ {
		bounds := screenshot.GetDisplayBounds(i)
		sources = append(sources, Source{
			ID:     i,
			Name:   fmt.Sprintf("Display %d", i),
			Bounds: bounds,
		})
	}
	return sources, nil
}

func (b *screenBackend) Open(src Source, format PixelFormat) (Grabber, error) {
	if _, err := needsSwizzle(RGBA8, format); err != nil {
		return nil, err
	}
	if src.Bounds.Empty() {
		return nil, fmt.Errorf("source %d has empty bounds", src.ID)
	}
	return &screenGrabber{bounds: src.Bounds}, nil
}

type screenGrabber struct {
	bounds image.Rectangle
}

func (g *screenGrabber) Grab() (RawFrame, error) {
	img, err := screenshot.CaptureRect(g.bounds)
	if err != nil {
		return RawFrame{}, fmt.Errorf("capture rect: %w", err)
	}
	return RawFrame{
		Size:   SizeOf(img.Bounds()),
		Format: RGBA8,
		Stride: img.Stride,
		Pix:    img.Pix,
	}, nil
}

func (g *screenGrabber) Close() error {
	return nil
}
