package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"fjarsyn/models"
)

// ============================================================
// DIAL
// ============================================================

// Dial connects to the relay and waits for the Identity greeting before
// starting the loops. ctx bounds the whole connection, not just the dial.
func Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: models.HandshakeTimeout,
	}
	headers := http.Header{"User-Agent": {"fjarsyn/1.0"}}

	ws, resp, err := dialer.DialContext(ctx, url, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (http %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	id, err := readIdentity(ws)
	if err != nil {
		ws.Close()
		return nil, err
	}

	ws.SetReadLimit(models.MaxMessageSize)
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(models.PongWait))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), deadline())
	})
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(models.PongWait))
	})

	c := newConn(ctx, url, id, ws)
	c.start()
	log.Infof("✅ Connected to relay %s as %s", url, id)
	return c, nil
}

func readIdentity(ws *websocket.Conn) (string, error) {
	ws.SetReadDeadline(time.Now().Add(models.HandshakeTimeout))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	msg, err := models.ParseSignalingMessage(raw)
	if err != nil {
		return "", fmt.Errorf("read identity: %w", err)
	}
	if msg.SigType != models.SigIdentity || msg.Data == "" {
		return "", fmt.Errorf("read identity: unexpected first message %s", msg)
	}
	return msg.Data, nil
}

func deadline() time.Time {
	return time.Now().Add(time.Second)
}

// ============================================================
// READER
// ============================================================

func (c *Conn) readLoop(ctx context.Context) error {
	defer close(c.inbound)

	for {
		c.ws.SetReadDeadline(time.Now().Add(models.PongWait))
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}

		msg, err := models.ParseSignalingMessage(raw)
		if err != nil {
			log.Warnf("⚠️  Dropping malformed frame: %v", err)
			continue
		}

		select {
		case c.inbound <- msg:
		case <-ctx.Done():
			return nil
		}
	}
}

// ============================================================
// WRITER
// ============================================================

func (c *Conn) writeLoop(ctx context.Context) error {
	ticker := time.NewTicker(models.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case msg := <-c.outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				log.Errorf("❌ Encode %s: %v", msg, err)
				continue
			}
			c.ws.SetWriteDeadline(time.Now().Add(models.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return fmt.Errorf("write %s: %w", msg.SigType, err)
			}
			log.Debugf("📤 %s", msg)

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(models.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}
