// Package feed streams battle events to websocket clients as JSON.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/udisondev/beastcall/internal/game/battle"
)

// Path is the websocket endpoint served by Serve.
const Path = "/events"

const (
	defaultQueueSize    = 256
	defaultWriteTimeout = 5 * time.Second
	shutdownTimeout     = 5 * time.Second
)

// Hub fans battle events out to connected clients. It is a battle.Observer.
//
// Every client has a bounded queue. OnEvent never blocks the machine: a client
// whose queue is full is disconnected with StatusPolicyViolation.
type Hub struct {
	queueSize    int
	writeTimeout time.Duration
	origins      []string
	logger       *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

type client struct {
	send chan []byte

	// Set before send is closed.
	status websocket.StatusCode
	reason string
}

// NewHub creates a Hub. queueSize <= 0 selects the default. origins lists the
// accepted Origin host patterns for browser clients.
func NewHub(queueSize int, logger *slog.Logger, origins ...string) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		queueSize:    queueSize,
		writeTimeout: defaultWriteTimeout,
		origins:      origins,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
}

// OnEvent implements battle.Observer.
func (h *Hub) OnEvent(e battle.Event) {
	msg, err := json.Marshal(e)
	if err != nil {
		h.logger.Error("encoding feed event", "type", e.Type, "seq", e.Seq, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("feed client too slow, disconnecting", "seq", e.Seq, "queue", h.queueSize)
			h.dropLocked(c, websocket.StatusPolicyViolation, "slow consumer")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.dropLocked(c, websocket.StatusGoingAway, "feed closed")
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves or
// is dropped. Client messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("feed accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := h.add()
	if c == nil {
		_ = conn.Close(websocket.StatusGoingAway, "feed closed")
		return
	}
	defer h.remove(c)

	ctx := conn.CloseRead(r.Context())
	h.logger.Debug("feed client connected", "remote", r.RemoteAddr)

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("feed client left", "remote", r.RemoteAddr)
			return
		case msg, ok := <-c.send:
			if !ok {
				_ = conn.Close(c.status, c.reason)
				return
			}
			wctx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug("feed write failed", "remote", r.RemoteAddr, "error", err)
				return
			}
		}
	}
}

// Serve serves the hub at Path on ln until ctx is done, then shuts down
// gracefully and disconnects all clients.
func (h *Hub) Serve(ctx context.Context, ln net.Listener) error {
	mux := http.NewServeMux()
	mux.Handle(Path, h)
	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	h.logger.Info("feed listening", "addr", ln.Addr().String(), "path", Path)

	select {
	case err := <-errCh:
		h.Close()
		return err
	case <-ctx.Done():
	}

	h.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (h *Hub) add() *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &client{send: make(chan []byte, h.queueSize)}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropLocked(c, websocket.StatusNormalClosure, "")
}

// dropLocked removes c and closes its queue. No-op for removed clients.
func (h *Hub) dropLocked(c *client, status websocket.StatusCode, reason string) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.status, c.reason = status, reason
	close(c.send)
}
