// Package signaling is the client side of the relay protocol: one
// websocket with independent reader and writer loops.
package signaling

import (
	"context"
	"errors"
	"sync"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("signaling")

var (
	ErrClosed    = errors.New("signaling: connection closed")
	ErrQueueFull = errors.New("signaling: outbound queue full")
)

// ============================================================
// CONNECTION - CORE STRUCTURE
// ============================================================

// Conn is a live relay connection. The reader and writer share nothing
// but the inbound and outbound queues.
type Conn struct {
	url string
	id  string
	ws  *websocket.Conn

	outbound chan models.SignalingMessage
	inbound  chan models.SignalingMessage

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	errMu sync.Mutex
	err   error
}

func newConn(parent context.Context, url, id string, ws *websocket.Conn) *Conn {
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		url:      url,
		id:       id,
		ws:       ws,
		outbound: make(chan models.SignalingMessage, models.ClientQueueSize),
		inbound:  make(chan models.SignalingMessage, models.ClientQueueSize),
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

func (c *Conn) start() {
	g, gctx := errgroup.WithContext(c.ctx)
	g.Go(func() error { return c.readLoop(gctx) })
	g.Go(func() error { return c.writeLoop(gctx) })
	g.Go(func() error {
		// Unblocks the reader once either loop stops.
		<-gctx.Done()
		c.ws.Close()
		return nil
	})

	go func() {
		err := g.Wait()
		if c.ctx.Err() != nil {
			err = nil
		}
		c.errMu.Lock()
		c.err = err
		c.errMu.Unlock()
		if err != nil {
			log.Warnf("🔌 Signaling connection lost: %v", err)
		} else {
			log.Infof("🔌 Signaling connection closed")
		}
		close(c.done)
	}()
}

// ID is the peer id the relay assigned to this connection.
func (c *Conn) ID() string {
	return c.id
}

// Send queues msg without blocking.
func (c *Conn) Send(msg models.SignalingMessage) error {
	select {
	case <-c.done:
		return ErrClosed
	case <-c.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case c.outbound <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Incoming yields parsed messages and is closed when the reader stops.
func (c *Conn) Incoming() <-chan models.SignalingMessage {
	return c.inbound
}

// Done is closed once both loops have exited.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended. It is nil after Close.
func (c *Conn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

// Close stops both loops and waits for them.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline(),
		)
		c.cancel()
	})
	<-c.done
	return nil
}
