// Package monitor exposes a running uplink over HTTP: a JSON status and
// control API and a websocket that pushes every telemetry event.
//
//	GET  /               control panel
//	GET  /api/status     current telemetry as JSON
//	POST /api/control    {"action": "stop" | "gain" | "mute" | "unmute", "value": 0.5}
//	GET  /ws             telemetry stream; accepts control messages too
package monitor

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/haivivi/pcmlink/pkg/buffer"
	"github.com/haivivi/pcmlink/pkg/uplink"
)

//go:embed static/*
var staticFS embed.FS

// clientQueueSize is the number of events buffered per websocket client
// before the oldest are dropped.
const clientQueueSize = 32

const writeTimeout = 5 * time.Second

// Controller is the part of an uplink engine the monitor drives.
type Controller interface {
	Snapshot() uplink.Telemetry
	Stop()
	SetGain(float32) float32
	SetMuted(bool)
	Subscribe(uplink.Observer) (cancel func())
}

// ControlRequest is the body of POST /api/control and of websocket
// messages sent by clients.
type ControlRequest struct {
	Action string   `json:"action"`
	Value  *float32 `json:"value,omitempty"`
}

// ControlResponse reports the outcome of a control request.
type ControlResponse struct {
	Message string           `json:"message"`
	Status  uplink.Telemetry `json:"status"`
}

// Server serves the monitor endpoints for one Controller.
type Server struct {
	ctrl     Controller
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	cancel   func()

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates a Server and subscribes it to ctrl's telemetry.
func New(ctrl Controller) *Server {
	s := &Server{
		ctrl:    ctrl,
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	static, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /", http.FileServer(http.FS(static)))
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /api/control", s.handleControl)
	s.mux.HandleFunc("GET /ws", s.handleWS)
	s.cancel = ctrl.Subscribe(uplink.ObserverFunc(s.broadcast))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Clients returns the number of connected websocket clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close unsubscribes from telemetry and disconnects all websocket clients.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := s.clients
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	s.cancel()
	for c := range clients {
		c.close()
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.Snapshot())
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req ControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	msg, err := s.apply(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, ControlResponse{Message: msg, Status: s.ctrl.Snapshot()})
}

var errMissingValue = errors.New("monitor: gain requires a value")

// apply executes a control request and describes the result.
func (s *Server) apply(req ControlRequest) (string, error) {
	var msg string
	switch req.Action {
	case "stop":
		s.ctrl.Stop()
		msg = "stopping"
	case "gain":
		if req.Value == nil {
			return "", errMissingValue
		}
		msg = fmt.Sprintf("gain %.2f", s.ctrl.SetGain(*req.Value))
	case "mute":
		s.ctrl.SetMuted(true)
		msg = "muted"
	case "unmute":
		s.ctrl.SetMuted(false)
		msg = "unmuted"
	default:
		return "", fmt.Errorf("monitor: unknown action %q", req.Action)
	}
	slog.Info("monitor: control action", "action", req.Action, "result", msg)
	return msg, nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{ws: ws, queue: buffer.RingN[uplink.Telemetry](clientQueueSize)}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ws.Close()
		return
	}
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	slog.Debug("monitor: websocket client connected", "remote", r.RemoteAddr)

	c.queue.Add(s.ctrl.Snapshot())
	go c.writeLoop()
	s.readLoop(c)

	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
	slog.Debug("monitor: websocket client disconnected", "remote", r.RemoteAddr)
}

// readLoop applies control messages from c until it disconnects.
func (s *Server) readLoop(c *client) {
	for {
		var req ControlRequest
		if err := c.ws.ReadJSON(&req); err != nil {
			return
		}
		if _, err := s.apply(req); err != nil {
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			c.ws.WriteJSON(map[string]string{"error": err.Error()})
			c.writeMu.Unlock()
		}
	}
}

func (s *Server) broadcast(t uplink.Telemetry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.queue.Add(t)
	}
}

type client struct {
	ws        *websocket.Conn
	queue     *buffer.Ring[uplink.Telemetry]
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func (c *client) writeLoop() {
	for {
		t, err := c.queue.Next()
		if err != nil {
			return
		}
		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
		err = c.ws.WriteJSON(t)
		c.writeMu.Unlock()
		if err != nil {
			c.ws.Close()
			return
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		c.queue.Close()
		c.ws.Close()
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("monitor: encode response", "error", err)
	}
}
