package webrtc

import (
	"errors"
	"io"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// ============================================================
// REMOTE VIDEO
// ============================================================

// readRemoteTrack depacketizes the remote H.264 stream and hands each
// complete access unit to the sample callback.
func (p *Peer) readRemoteTrack(track *webrtc.TrackRemote) {
	builder := samplebuilder.New(
		p.cfg.MaxDepacketLatency,
		&codecs.H264Packet{},
		track.Codec().ClockRate,
	)

	var packets, samples uint64
	defer func() {
		log.Infof("🛑 RTP reader stopped (%d packets, %d samples)", packets, samples)
	}()

	for {
		if p.ctx.Err() != nil {
			return
		}

		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debugf("RTP read: %v", err)
			}
			return
		}
		packets++

		builder.Push(pkt)
		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			samples++
			p.mu.Lock()
			fn := p.onSample
			p.mu.Unlock()
			if fn != nil {
				fn(sample.Data)
			}
		}
	}
}
