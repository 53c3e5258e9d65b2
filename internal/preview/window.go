// Package preview shows local or remote frames in an OpenCV window.
package preview

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"fjarsyn/internal/capture"
	"fjarsyn/internal/logging"
)

var log = logging.New("preview")

const (
	maxDisplayWidth = 1280
	keyEsc          = 27
	keyQuit         = 'q'
	keySnapshot     = 's'
)

// ErrClosed is returned by Run when the user closes the window.
var ErrClosed = errors.New("preview window closed")

// ============================================================
// WINDOW
// ============================================================

// Window displays the most recent submitted frame. gocv windows must be
// driven from one goroutine, so Submit only parks the frame and Run does
// the drawing.
type Window struct {
	title       string
	snapshotDir string

	win    *gocv.Window
	latest chan *capture.Frame

	mu     sync.Mutex
	last   []byte
	size   capture.Size
	format capture.PixelFormat

	closeOnce sync.Once
}

func NewWindow(title string) *Window {
	return &Window{
		title:       title,
		snapshotDir: ".",
		win:         gocv.NewWindow(title),
		latest:      make(chan *capture.Frame, 1),
	}
}

// SetSnapshotDir sets where the snapshot key writes JPEG files.
func (w *Window) SetSnapshotDir(dir string) {
	w.snapshotDir = dir
}

// Submit hands a frame to the window, replacing one not yet shown. The
// window owns the frame afterwards.
func (w *Window) Submit(f *capture.Frame) {
	for {
		select {
		case w.latest <- f:
			return
		default:
		}
		select {
		case old := <-w.latest:
			old.Release()
		default:
		}
	}
}

// Run draws submitted frames until ctx ends or the user quits.
func (w *Window) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-w.latest:
			if err := w.Show(f); err != nil {
				log.Warnf("⚠️  Preview frame skipped: %v", err)
			}
		default:
		}

		switch key := w.win.WaitKey(10); key {
		case keyEsc, keyQuit:
			return ErrClosed
		case keySnapshot:
			if path, err := w.snapshot(); err != nil {
				log.Warnf("⚠️  Snapshot failed: %v", err)
			} else {
				log.Infof("📸 Snapshot saved to %s", path)
			}
		}
		if !w.win.IsOpen() {
			return ErrClosed
		}
	}
}

// Show draws f immediately and releases it.
func (w *Window) Show(f *capture.Frame) error {
	if f == nil {
		return nil
	}
	defer f.Release()

	mat, err := toBGR(f.Pixels(), f.Size, f.Format)
	if err != nil {
		return err
	}
	defer mat.Close()

	if mat.Cols() > maxDisplayWidth {
		scaled := gocv.NewMat()
		defer scaled.Close()
		h := mat.Rows() * maxDisplayWidth / mat.Cols()
		gocv.Resize(mat, &scaled, image.Pt(maxDisplayWidth, h), 0, 0, gocv.InterpolationLinear)
		w.win.IMShow(scaled)
	} else {
		w.win.IMShow(mat)
	}

	w.mu.Lock()
	w.last = append(w.last[:0], f.Pixels()...)
	w.size = f.Size
	w.format = f.Format
	w.mu.Unlock()
	return nil
}

func (w *Window) snapshot() (string, error) {
	w.mu.Lock()
	pixels := append([]byte(nil), w.last...)
	size, format := w.size, w.format
	w.mu.Unlock()

	if len(pixels) == 0 {
		return "", fmt.Errorf("nothing shown yet")
	}

	mat, err := toBGR(pixels, size, format)
	if err != nil {
		return "", err
	}
	defer mat.Close()

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, mat)
	if err != nil {
		return "", fmt.Errorf("IMEncode failed: %w", err)
	}
	defer buf.Close()

	path := filepath.Join(w.snapshotDir, fmt.Sprintf("fjarsyn-%s.jpg", time.Now().Format("20060102-150405")))
	if err := os.WriteFile(path, buf.GetBytes(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (w *Window) Close() {
	w.closeOnce.Do(func() {
		for {
			select {
			case f := <-w.latest:
				f.Release()
				continue
			default:
			}
			break
		}
		if err := w.win.Close(); err != nil {
			log.Warnf("⚠️  Window close: %v", err)
		}
	})
}

// ============================================================
// CONVERSION
// ============================================================

func toBGR(pixels []byte, size capture.Size, format capture.PixelFormat) (gocv.Mat, error) {
	if size.Empty() || len(pixels) < size.Bytes(format) {
		return gocv.Mat{}, fmt.Errorf("short frame: %d bytes for %s %s", len(pixels), size, format)
	}

	matType, code := gocv.MatTypeCV8UC4, gocv.ColorRGBAToBGR
	switch format {
	case capture.BGRA8:
		code = gocv.ColorBGRAToBGR
	case capture.RGBA16:
		matType = gocv.MatTypeCV16UC4
	}

	src, err := gocv.NewMatFromBytes(size.Height, size.Width, matType, pixels[:size.Bytes(format)])
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("NewMatFromBytes: %w", err)
	}
	defer src.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(src, &bgr, code)

	if format == capture.RGBA16 {
		out := gocv.NewMat()
		bgr.ConvertToWithParams(&out, gocv.MatTypeCV8UC3, 1.0/256, 0)
		bgr.Close()
		return out, nil
	}
	return bgr, nil
}
