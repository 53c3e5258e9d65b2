// Package logging owns the process-wide pion logger factory. Every
// package asks it for a scoped logger, and the WebRTC stack is handed the
// same factory so its internals land in the same sink.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pion/logging"
)

const EnvLevel = "FJARSYN_LOG_LEVEL"

var (
	once    sync.Once
	factory *logging.DefaultLoggerFactory
	mu      sync.Mutex
	created []*logging.DefaultLeveledLogger
)

func defaultFactory() *logging.DefaultLoggerFactory {
	once.Do(func() {
		factory = logging.NewDefaultLoggerFactory()
		factory.DefaultLogLevel = logging.LogLevelInfo
		if lvl, ok := ParseLevel(os.Getenv(EnvLevel)); ok {
			factory.DefaultLogLevel = lvl
		}
	})
	return factory
}

// Factory returns the shared factory, suitable for webrtc.SettingEngine.
func Factory() logging.LoggerFactory {
	return defaultFactory()
}

// New returns a leveled logger for scope.
func New(scope string) logging.LeveledLogger {
	f := defaultFactory()
	mu.Lock()
	defer mu.Unlock()
	l := f.NewLogger(scope)
	if dl, ok := l.(*logging.DefaultLeveledLogger); ok {
		created = append(created, dl)
	}
	return l
}

// SetLevel changes the level of every logger handed out by New and of
// those created afterwards.
func SetLevel(level string) bool {
	lvl, ok := ParseLevel(level)
	if !ok {
		return false
	}
	f := defaultFactory()
	mu.Lock()
	f.DefaultLogLevel = lvl
	for _, l := range created {
		l.SetLevel(lvl)
	}
	mu.Unlock()
	return true
}

// SetOutput redirects loggers created afterwards.
func SetOutput(w io.Writer) {
	f := defaultFactory()
	mu.Lock()
	f.Writer = w
	mu.Unlock()
}

func ParseLevel(s string) (logging.LogLevel, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return logging.LogLevelTrace, true
	case "debug":
		return logging.LogLevelDebug, true
	case "info":
		return logging.LogLevelInfo, true
	case "warn", "warning":
		return logging.LogLevelWarn, true
	case "error":
		return logging.LogLevelError, true
	case "disabled", "off", "none":
		return logging.LogLevelDisabled, true
	}
	return logging.LogLevelDisabled, false
}
