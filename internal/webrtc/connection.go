package webrtc

import (
	"time"

	"fjarsyn/models"
)

const closeWait = 2 * time.Second

// ============================================================
// DISCONNECT
// ============================================================

// Disconnect closes the peer connection and waits briefly for its reader
// goroutines. Safe to call more than once.
func (p *Peer) Disconnect() {
	p.closeOnce.Do(func() {
		log.Infof("🧹 Closing peer connection to %s", p.remoteID)

		p.cancel()

		if err := p.pc.Close(); err != nil {
			log.Warnf("⚠️  PC close: %v", err)
		}

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(closeWait):
			log.Warnf("⚠️  Peer readers did not stop within %v", closeWait)
		}

		p.emitState(models.TransportDisconnected)
		log.Infof("✅ Peer closed")
	})
}
