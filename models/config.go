package models

// ============================================================
// CONFIGURATION
// ============================================================

// Config holds the client settings. Flags and environment variables
// override these in main.go.
type Config struct {
	ServerURL          string
	Bitrate            int
	Framerate          int
	PixelFormat        string
	MaxDepacketLatency uint16
	Display            int
	ICEServers         []string
	Preview            bool
	RemoteWidth        int
	RemoteHeight       int
	FFmpegPath         string
	LogLevel           string
}

func DefaultConfig() Config {
	return Config{
		ServerURL:          DefaultServerURL,
		Bitrate:            8_000_000,
		Framerate:          30,
		PixelFormat:        "RGBA8",
		MaxDepacketLatency: 2000,
		Display:            0,
		ICEServers:         []string{DefaultSTUNURL},
		Preview:            false,
		RemoteWidth:        1280,
		RemoteHeight:       720,
		FFmpegPath:         "ffmpeg",
		LogLevel:           "info",
	}
}

// RelayConfig holds the bifrost settings.
type RelayConfig struct {
	Addr     string
	LogLevel string
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{Addr: DefaultRelayAddr, LogLevel: "info"}
}
