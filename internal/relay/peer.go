package relay

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"fjarsyn/models"
)

// ============================================================
// PEER CONNECTION
// ============================================================

type peer struct {
	id   string
	conn *websocket.Conn
	send chan models.SignalingMessage

	closeOnce sync.Once
	done      chan struct{}
}

func newPeer(id string, conn *websocket.Conn) *peer {
	return &peer{
		id:   id,
		conn: conn,
		send: make(chan models.SignalingMessage, models.PeerQueueSize),
		done: make(chan struct{}),
	}
}

// enqueue never blocks the router. A peer that cannot keep up loses
// messages rather than stalling everyone else.
func (p *peer) enqueue(msg models.SignalingMessage) {
	select {
	case <-p.done:
		return
	default:
	}

	select {
	case p.send <- msg:
	default:
		log.Warnf("⚠️  Outbound queue full for %s, dropping %s", p.id, msg)
	}
}

func (p *peer) close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		p.conn.Close()
	})
}

func (p *peer) readPump(route func(*peer, models.SignalingMessage)) {
	p.conn.SetReadLimit(models.MaxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(models.PongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(models.PongWait))
	})

	for {
		_, raw, err := p.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warnf("⚠️  Read error from %s: %v", p.id, err)
			}
			return
		}
		p.conn.SetReadDeadline(time.Now().Add(models.PongWait))

		msg, err := models.ParseSignalingMessage(raw)
		if err != nil {
			log.Warnf("⚠️  Malformed message from %s: %v", p.id, err)
			continue
		}
		route(p, msg)
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(models.PingInterval)
	defer ticker.Stop()
	defer p.close()

	for {
		select {
		case <-p.done:
			return

		case msg := <-p.send:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Errorf("❌ Encode for %s: %v", p.id, err)
				continue
			}
			p.conn.SetWriteDeadline(time.Now().Add(models.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warnf("⚠️  Write to %s failed: %v", p.id, err)
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(models.WriteTimeout))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
