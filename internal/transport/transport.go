// Package transport exposes the event bus over HTTP: a WebSocket stream
// relaying every UiEvent as spec.md §6's {type, payload} envelope, plus
// /healthz and /metrics. Routing is gorilla/mux and the socket is
// gorilla/websocket, grounded on the teacher's internal/api/server.go
// (mux.NewRouter, CORS middleware, one HandleFunc per route) and
// internal/fabric/websocket.go (upgrader with CheckOrigin, ping/pong
// keepalive on a dedicated ticker goroutine).
package transport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netsentinel/agent/internal/eventbus"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON envelope spec.md §6 names for the event bus wire
// format: {"type": "flow"|"alert"|"status", "payload": ...}.
type wireEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Server wires an event bus, a health check, and a Prometheus registry
// into one HTTP mux.
type Server struct {
	bus     *eventbus.Bus
	healthy func() bool
	reg     *prometheus.Registry
}

// New builds a Server. healthy reports whether the pipeline is up for
// /healthz; reg is served at /metrics.
func New(bus *eventbus.Bus, healthy func() bool, reg *prometheus.Registry) *Server {
	return &Server{bus: bus, healthy: healthy, reg: reg}
}

// Router builds the mux.Router for this Server. It is exported
// separately from a Start/Serve pair so callers can wrap it (e.g. with
// their own TLS listener) the way the teacher's cmd/api/main.go does.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.healthy != nil && !s.healthy() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"unhealthy"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("transport: websocket upgrade failed", "error", err)
		return
	}

	connID := uuid.NewString()
	slog.Info("transport: websocket connected", "conn_id", connID, "remote", r.RemoteAddr)
	defer slog.Info("transport: websocket disconnected", "conn_id", connID)

	ch, unsubscribe := s.bus.Subscribe()
	defer unsubscribe()

	go s.readPump(conn)
	s.writePump(conn, ch)
}

// readPump drains client frames (pings/pongs, close) without expecting
// any application messages from the shell; its only job is to notice the
// connection dying.
func (s *Server) readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(conn *websocket.Conn, ch <-chan eventbus.UiEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer conn.Close()

	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(toWireEvent(ev)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func toWireEvent(ev eventbus.UiEvent) wireEvent {
	switch ev.Kind {
	case eventbus.KindFlow:
		return wireEvent{Type: "flow", Payload: ev.Flow}
	case eventbus.KindAlert:
		return wireEvent{Type: "alert", Payload: ev.Alert}
	case eventbus.KindStatus:
		return wireEvent{Type: "status", Payload: ev.Status}
	default:
		return wireEvent{Type: string(ev.Kind)}
	}
}
