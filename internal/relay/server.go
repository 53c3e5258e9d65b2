// Package relay routes signaling messages between connected peers. It
// never looks at the media path.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"fjarsyn/internal/logging"
	"fjarsyn/models"
)

var log = logging.New("relay")

// ============================================================
// SERVER
// ============================================================

type Server struct {
	upgrader websocket.Upgrader
	newID    func() string

	mu    sync.RWMutex
	peers map[string]*peer
}

func NewServer() *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		newID: uuid.NewString,
		peers: make(map[string]*peer),
	}
}

// Handler serves the upgrade endpoint and a health probe.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(models.SignalingPath, s.serveWS)
	mux.HandleFunc(models.HealthPath, s.serveHealth)
	return mux
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: models.HandshakeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("🌉 Relay listening on ws://%s%s", addr, models.SignalingPath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("relay listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("relay shutdown: %w", err)
	}
	s.closeAll()
	log.Infof("🛑 Relay stopped")
	return nil
}

// Peers reports the number of registered peers.
func (s *Server) Peers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

func (s *Server) serveHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"peers": s.Peers()})
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("⚠️  Upgrade failed from %s: %v", r.RemoteAddr, err)
		return
	}

	p := newPeer(s.newID(), conn)

	// The greeting is queued before the peer becomes routable, so it is
	// always the first frame the client sees.
	p.enqueue(models.NewIdentity(p.id))
	s.register(p)
	log.Infof("✅ Peer connected: %s (%s)", p.id, r.RemoteAddr)

	go p.writePump()
	p.readPump(s.route)

	s.deregister(p)
	p.close()
	log.Infof("👋 Peer disconnected: %s", p.id)
}

// ============================================================
// REGISTRY
// ============================================================

func (s *Server) register(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers[p.id] = p
}

func (s *Server) deregister(p *peer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.peers[p.id]; ok && cur == p {
		delete(s.peers, p.id)
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[string]*peer)
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
}

// route stamps the sender id and delivers msg. Unknown targets are dropped.
func (s *Server) route(from *peer, msg models.SignalingMessage) {
	msg.From = from.id

	s.mu.RLock()
	defer s.mu.RUnlock()

	if msg.IsBroadcast() {
		for id, p := range s.peers {
			if id == from.id {
				continue
			}
			p.enqueue(msg)
		}
		log.Debugf("📣 %s broadcast to %d peers", msg, len(s.peers)-1)
		return
	}

	target, ok := s.peers[msg.To]
	if !ok {
		log.Warnf("⚠️  Dropping %s: no peer %q", msg, msg.To)
		return
	}
	target.enqueue(msg)
	log.Debugf("📨 %s", msg)
}
