package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	osSignal "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kivara1314/kivara/internal/config"
	"github.com/kivara1314/kivara/internal/metrics"
	"github.com/kivara1314/kivara/internal/stream"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans NATS traffic out to websocket clients. A client may subscribe to
// a single session with ?session=<id>; otherwise it sees everything.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*client
}

// client serialises writes: gorilla connections allow one writer at a time
// and waves and decisions arrive on different goroutines.
type client struct {
	conn    *websocket.Conn
	session string
	mu      sync.Mutex
}

func (c *client) write(messageType int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(200 * time.Millisecond))
	return c.conn.WriteMessage(messageType, b)
}

func newHub() *Hub {
	return &Hub{clients: make(map[*websocket.Conn]*client)}
}

func (h *Hub) add(c *websocket.Conn, session string) {
	h.mu.Lock()
	h.clients[c] = &client{conn: c, session: session}
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) remove(c *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, c)
	metrics.WebsocketClients.Set(float64(len(h.clients)))
	h.mu.Unlock()
}

func (h *Hub) snapshot(session string) []*client {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		if c.session == "" || c.session == session {
			clients = append(clients, c)
		}
	}
	h.mu.Unlock()
	return clients
}

func (h *Hub) broadcast(kind, session string, messageType int, b []byte) {
	clients := h.snapshot(session)
	for _, c := range clients {
		if err := c.write(messageType, b); err != nil {
			_ = c.conn.Close()
			h.remove(c.conn)
		}
	}
	metrics.MessagesRelayed.WithLabelValues(kind).Add(float64(len(clients)))
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var (
		addr = flag.String("addr", cfg.Server.Addr, "http address")
		web  = flag.String("web", "./web", "static files directory")
	)
	flag.Parse()

	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	nc, err := stream.Connect(cfg.NATS.URL, "kivara-server")
	if err != nil {
		logger.Error("nats connect", "error", err)
		os.Exit(1)
	}
	defer nc.Drain()

	hub := newHub()

	// raw waves: binary passthrough
	if _, err := nc.Subscribe(cfg.NATS.WaveSubject, func(msg *nats.Msg) {
		metrics.MessagesReceived.WithLabelValues(msg.Subject).Inc()
		hub.broadcast("wave", msg.Header.Get(stream.HeaderSession), websocket.BinaryMessage, msg.Data)
	}); err != nil {
		logger.Error("subscribe waves", "error", err)
		os.Exit(1)
	}

	// decisions: JSON text
	if _, err := nc.Subscribe(cfg.NATS.DecisionSubject, func(msg *nats.Msg) {
		metrics.MessagesReceived.WithLabelValues(msg.Subject).Inc()
		var head struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(msg.Data, &head); err != nil {
			logger.Warn("dropping undecodable decision", "error", err)
			return
		}
		hub.broadcast("decision", head.SessionID, websocket.TextMessage, msg.Data)
	}); err != nil {
		logger.Error("subscribe decisions", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.Handle("/", http.FileServer(http.Dir(*web)))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.add(conn, r.URL.Query().Get("session"))
		defer func() {
			hub.remove(conn)
			conn.Close()
		}()

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	})

	server := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info("server running", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
		}
	}()

	ctx, stop := osSignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	logger.Info("server stopped")
}
