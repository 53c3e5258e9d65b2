package main

import (
	"fmt"
	"strconv"
	"strings"

	flag "github.com/spf13/pflag"

	"fjarsyn/internal/capture"
	"fjarsyn/models"
)

// ============================================================
// FLAGS
// ============================================================

type options struct {
	cfg         models.Config
	source      string
	callTarget  string
	listSources bool
	remoteSize  string
}

// parseFlags reads args on top of environment overrides on top of the
// defaults.
func parseFlags(args []string, getenv func(string) string) (options, error) {
	opts := options{cfg: models.DefaultConfig()}
	cfg := &opts.cfg

	cfg.ServerURL = envOr(getenv, "FJARSYN_SERVER_URL", cfg.ServerURL)
	cfg.PixelFormat = envOr(getenv, "FJARSYN_PIXEL_FORMAT", cfg.PixelFormat)
	cfg.FFmpegPath = envOr(getenv, "FJARSYN_FFMPEG", cfg.FFmpegPath)
	cfg.LogLevel = envOr(getenv, "FJARSYN_LOG_LEVEL", cfg.LogLevel)
	var err error
	if cfg.Bitrate, err = envInt(getenv, "FJARSYN_BITRATE", cfg.Bitrate); err != nil {
		return opts, err
	}
	if cfg.Framerate, err = envInt(getenv, "FJARSYN_FRAMERATE", cfg.Framerate); err != nil {
		return opts, err
	}
	if cfg.Display, err = envInt(getenv, "FJARSYN_DISPLAY", cfg.Display); err != nil {
		return opts, err
	}
	if v := getenv("FJARSYN_ICE_SERVERS"); v != "" {
		cfg.ICEServers = strings.Split(v, ",")
	}

	fs := flag.NewFlagSet("fjarsyn", flag.ContinueOnError)
	fs.StringVarP(&cfg.ServerURL, "server", "s", cfg.ServerURL, "Signaling relay websocket URL")
	fs.IntVarP(&cfg.Display, "display", "d", cfg.Display, "Display index to share")
	fs.IntVarP(&cfg.Framerate, "framerate", "r", cfg.Framerate, "Capture framerate")
	fs.IntVarP(&cfg.Bitrate, "bitrate", "b", cfg.Bitrate, "Video bitrate, in bits per second")
	fs.StringVar(&cfg.PixelFormat, "pixel-format", cfg.PixelFormat, "Capture pixel format (RGBA8, BGRA8, RGBA16)")
	fs.StringSliceVar(&cfg.ICEServers, "ice", cfg.ICEServers, "ICE server URLs")
	fs.BoolVarP(&cfg.Preview, "preview", "p", cfg.Preview, "Show the remote screen in a window")
	fs.StringVar(&cfg.FFmpegPath, "ffmpeg", cfg.FFmpegPath, "Path to the ffmpeg binary")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "trace, debug, info, warn, error or disabled")
	fs.StringVar(&opts.remoteSize, "remote-size", fmt.Sprintf("%dx%d", cfg.RemoteWidth, cfg.RemoteHeight), "Decoded size of the remote screen")
	fs.StringVar(&opts.source, "source", "screen", "Frame source: screen or pattern")
	fs.StringVarP(&opts.callTarget, "call", "c", "", "Peer id to call once connected")
	fs.BoolVarP(&opts.listSources, "list-sources", "l", false, "List capture sources and exit")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	w, h, err := parseSize(opts.remoteSize)
	if err != nil {
		return opts, fmt.Errorf("--remote-size: %w", err)
	}
	cfg.RemoteWidth, cfg.RemoteHeight = w, h

	if _, err := capture.ParsePixelFormat(cfg.PixelFormat); err != nil {
		return opts, err
	}
	if _, err := capture.ParseFramerate(strconv.Itoa(cfg.Framerate)); err != nil {
		return opts, err
	}
	if opts.source != "screen" && opts.source != "pattern" {
		return opts, fmt.Errorf("unknown source %q", opts.source)
	}
	return opts, nil
}

func envOr(getenv func(string) string, key, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(getenv func(string) string, key string, fallback int) (int, error) {
	v := getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func parseSize(s string) (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return 0, 0, fmt.Errorf("want WIDTHxHEIGHT, got %q", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return 0, 0, err
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return 0, 0, err
	}
	if width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("invalid size %q", s)
	}
	return width, height, nil
}
