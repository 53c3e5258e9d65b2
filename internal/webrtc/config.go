package webrtc

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("webrtc")

// ============================================================
// CONFIGURATION
// ============================================================

type Config struct {
	ICEServers []string
	// MaxDepacketLatency bounds how many packets the sample builder holds
	// while waiting for a gap to fill.
	MaxDepacketLatency uint16
	// BitrateKbps is advertised as b=AS on the video section. Zero leaves
	// the SDP untouched.
	BitrateKbps int
	// Loopback allows 127.0.0.1 host candidates.
	Loopback bool
}

func DefaultConfig() Config {
	return Config{
		ICEServers:         []string{models.DefaultSTUNURL},
		MaxDepacketLatency: 2000,
	}
}

// ConfigFrom derives transport settings from the client config.
func ConfigFrom(c models.Config) Config {
	cfg := DefaultConfig()
	if len(c.ICEServers) > 0 {
		cfg.ICEServers = c.ICEServers
	}
	if c.MaxDepacketLatency > 0 {
		cfg.MaxDepacketLatency = c.MaxDepacketLatency
	}
	cfg.BitrateKbps = c.Bitrate / 1000
	return cfg
}

func (c Config) configuration() webrtc.Configuration {
	servers := make([]webrtc.ICEServer, 0, len(c.ICEServers))
	for _, url := range c.ICEServers {
		servers = append(servers, webrtc.ICEServer{URLs: []string{url}})
	}
	return webrtc.Configuration{ICEServers: servers}
}

// ============================================================
// API
// ============================================================

func newAPI(cfg Config) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   90000,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: []webrtc.RTCPFeedback{
				{Type: "goog-remb"},
				{Type: "ccm", Parameter: "fir"},
				{Type: "nack"},
				{Type: "nack", Parameter: "pli"},
			},
		},
		PayloadType: 102,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register H264: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settings := webrtc.SettingEngine{LoggerFactory: logging.Factory()}
	if cfg.Loopback {
		settings.SetIncludeLoopbackCandidate(true)
	}

	return webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settings),
	), nil
}
