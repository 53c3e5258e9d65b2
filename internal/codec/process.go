// Package codec encodes and decodes H.264 through a long-running ffmpeg
// process per direction.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"fjarsyn/internal/logging"
)

var log = logging.New("codec")

const (
	DefaultFFmpeg  = "ffmpeg"
	maxStderrShown = 200
	stopGrace      = 500 * time.Millisecond
)

// ============================================================
// FFMPEG PROCESS
// ============================================================

type ffmpegProc struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tailBuffer
	done   chan struct{}
	err    error
}

func startFFmpeg(path string, args []string) (*ffmpegProc, error) {
	if path == "" {
		path = DefaultFFmpeg
	}
	cmd := exec.Command(path, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr := &tailBuffer{max: 4096}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start: %w", err)
	}
	log.Debugf("ffmpeg started: %s", strings.Join(args, " "))

	p := &ffmpegProc{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr, done: make(chan struct{})}
	return p, nil
}

// wait reaps the process. Only the goroutine that drains stdout calls it.
func (p *ffmpegProc) wait() {
	p.err = p.cmd.Wait()
	close(p.done)
}

func (p *ffmpegProc) write(b []byte) error {
	if _, err := p.stdin.Write(b); err != nil {
		return fmt.Errorf("ffmpeg write: %w (%s)", err, p.stderr.Tail())
	}
	return nil
}

// stop closes stdin so ffmpeg flushes and exits, then kills it if it
// lingers.
func (p *ffmpegProc) stop() {
	p.stdin.Close()
	select {
	case <-p.done:
	case <-time.After(stopGrace):
		if p.cmd.Process != nil {
			p.cmd.Process.Kill()
		}
		<-p.done
	}
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) Tail() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := strings.TrimSpace(t.buf.String())
	if len(s) > maxStderrShown {
		s = "..." + s[len(s)-maxStderrShown:]
	}
	return s
}
