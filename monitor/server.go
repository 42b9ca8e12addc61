package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

//go:embed static/*
var staticFiles embed.FS

// Message is a WebSocket envelope sent to dashboard clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Server serves the web dashboard: a static page plus a WebSocket feed
// of Progress snapshots polled from a running driver.
type Server struct {
	driver       Driver
	pollInterval time.Duration
	port         int
	hub          *Hub
	httpServer   *http.Server
}

// NewServer creates a web dashboard server for driver, polling its
// progress every pollInterval and listening on port.
func NewServer(driver Driver, pollInterval time.Duration, port int) *Server {
	if pollInterval <= 0 {
		pollInterval = 200 * time.Millisecond
	}
	return &Server{
		driver:       driver,
		pollInterval: pollInterval,
		port:         port,
		hub:          NewHub(),
	}
}

// Start runs the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.broadcastLoop()

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return fmt.Errorf("monitor: creating static file system: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/api/progress", s.handleAPIProgress)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("monitor dashboard starting", "port", s.port, "url", fmt.Sprintf("http://localhost:%d", s.port))
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, err := staticFiles.ReadFile("static/index.html")
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(data)
}

//nolint:gochecknoglobals // WebSocket upgrader configuration
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("monitor: WebSocket upgrade failed", "error", err)
		return
	}

	client := &Client{hub: s.hub, conn: conn, send: make(chan []byte, 256)}
	s.hub.register <- client

	s.sendProgress(client)

	go client.writePump()
	client.readPump()
}

func (s *Server) sendProgress(client *Client) {
	msg := Message{Type: "progress", Payload: Snapshot(s.driver)}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("monitor: failed to marshal progress", "error", err)
		return
	}
	client.send <- data
}

// broadcastLoop polls the driver for new iterations and pushes a
// snapshot to the hub whenever one arrives; Hub.Push itself discards
// repeats of the same iteration, so an optimizer stuck in a single
// line search produces no WebSocket traffic between iterations.
func (s *Server) broadcastLoop() {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for range ticker.C {
		if s.hub.ClientCount() == 0 {
			continue
		}
		s.hub.Push(Snapshot(s.driver))
	}
}

func (s *Server) handleAPIProgress(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	//nolint:errchkjson // Progress is a well-defined struct
	_ = json.NewEncoder(w).Encode(Snapshot(s.driver))
}
