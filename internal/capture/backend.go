package capture

import (
	"fmt"
	"image"
)

// ============================================================
// BACKEND CONTRACT
// ============================================================

// Source is something a backend can capture, such as a display.
type Source struct {
	ID     int
	Name   string
	Bounds image.Rectangle
}

func (s Source) String() string {
	return fmt.Sprintf("#%d %s (%s)", s.ID, s.Name, SizeOf(s.Bounds))
}

// RawFrame is what a Grabber hands to the staging pipeline. Pix is only
// valid until the next Grab.
type RawFrame struct {
	Size       Size
	Format     PixelFormat
	Stride     int
	Pix        []byte
	DirtyRects []Rect
}

// Backend is the platform capture API. Init and Shutdown bracket the
// process-wide platform state and are reference counted by the session.
type Backend interface {
	Init() error
	Shutdown()
	Sources() ([]Source, error)
	Open(src Source, format PixelFormat) (Grabber, error)
	Device() Device
}

// Grabber produces raw frames on the capture thread. Grab returns
// ErrNoFrame when nothing new is available.
type Grabber interface {
	Grab() (RawFrame, error)
	Close() error
}

// ListSources enumerates the capturable sources of b.
func ListSources(b Backend) ([]Source, error) {
	if err := acquirePlatform(b); err != nil {
		return nil, err
	}
	defer releasePlatform(b)

	sources, err := b.Sources()
	if err != nil {
		return nil, platformErr("list sources", err)
	}
	return sources, nil
}
