package capture

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Framerate int

const (
	FPS5   Framerate = 5
	FPS24  Framerate = 24
	FPS30  Framerate = 30
	FPS60  Framerate = 60
	FPS120 Framerate = 120
	FPS144 Framerate = 144
	FPS200 Framerate = 200
)

var AllFramerates = []Framerate{FPS5, FPS24, FPS30, FPS60, FPS120, FPS144, FPS200}

func (f Framerate) Hz() float64 {
	return float64(f)
}

func (f Framerate) FrameTime() time.Duration {
	if f <= 0 {
		return time.Second / time.Duration(FPS30)
	}
	return time.Second / time.Duration(f)
}

func (f Framerate) String() string {
	return strconv.Itoa(int(f))
}

func ParseFramerate(s string) (Framerate, error) {
	n, err := strconv.Atoi(strings.TrimSpace(strings.TrimSuffix(strings.ToLower(s), "fps")))
	if err != nil {
		return 0, fmt.Errorf("framerate %q: %w", s, err)
	}
	for _, f := range AllFramerates {
		if int(f) == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unsupported framerate %d", n)
}
