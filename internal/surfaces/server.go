// Package surfaces provides the real-time WebSocket fan-out for UI surfaces.
//
// Popup, options-page, and content-script surfaces connect over WebSocket
// and receive the full reloaded document whenever the store propagates a
// change. No diffing is provided: each surface re-derives its own view from
// the document it receives.
package surfaces

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/shelfmark/shelfmark/internal/model"
	"github.com/shelfmark/shelfmark/internal/store"
)

// MessageType defines the type of surface message.
type MessageType string

const (
	// MessageTypeDocument carries the full current document.
	MessageTypeDocument MessageType = "document_update"

	// MessageTypeStats carries bookmark/tag counts.
	MessageTypeStats MessageType = "stats"

	// MessageTypeCleared indicates the store was reset.
	MessageTypeCleared MessageType = "cleared"
)

// Message is one broadcast frame.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// StatsData summarizes the document for lightweight surfaces.
type StatsData struct {
	Bookmarks int `json:"bookmarks"`
	Tags      int `json:"tags"`
	Deleted   int `json:"deleted"`
}

// session is one connected surface. Frames are queued per session so one
// slow surface cannot stall delivery to the others; a session that falls
// behind is dropped.
type session struct {
	conn *websocket.Conn
	send chan []byte
}

// Server accepts surface connections and fans propagated documents out to
// all of them.
type Server struct {
	addr     string
	listener net.Listener
	httpSrv  *http.Server

	mgr *store.Manager

	mu       sync.Mutex
	sessions map[*session]struct{}

	unsubscribe func()

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *log.Logger
}

// Config holds server configuration.
type Config struct {
	// Port to listen on (default: 8710).
	Port int

	// Logger for server activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port:   8710,
		Logger: log.Default(),
	}
}

// NewServer creates a surfaces server bound to the given store manager.
func NewServer(mgr *store.Manager, config *Config) *Server {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		addr:     fmt.Sprintf(":%d", config.Port),
		mgr:      mgr,
		sessions: make(map[*session]struct{}),
		ctx:      ctx,
		cancel:   cancel,
		logger:   config.Logger,
	}
}

// Start begins the HTTP server and subscribes to store change propagation.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/", s.handleRoot)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Every propagated document reaches every connected surface.
	s.unsubscribe = s.mgr.AddListener(func(doc *model.Document) {
		s.BroadcastDocument(doc)
	})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.logger.Printf("Surfaces server listening on %s", s.addr)
		if err := s.httpSrv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Printf("Server error: %v", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Println("Stopping surfaces server")

	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.cancel()

	s.mu.Lock()
	for sess := range s.sessions {
		_ = sess.conn.Close(websocket.StatusGoingAway, "Server shutting down")
		delete(s.sessions, sess)
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.wg.Wait()
	s.logger.Println("Surfaces server stopped")
	return nil
}

// BroadcastDocument sends a document_update frame (plus a stats frame) to
// every connected surface.
func (s *Server) BroadcastDocument(doc *model.Document) {
	data, err := json.Marshal(doc)
	if err != nil {
		s.logger.Printf("Failed to marshal document: %v", err)
		return
	}
	s.Broadcast(Message{Type: MessageTypeDocument, Data: data})

	active := doc.ActiveBookmarks()
	stats := StatsData{
		Bookmarks: len(active),
		Tags:      len(doc.Tags),
		Deleted:   len(doc.Bookmarks) - len(active),
	}
	statsData, _ := json.Marshal(stats)
	s.Broadcast(Message{Type: MessageTypeStats, Data: statsData})
}

// Broadcast queues a frame on every session. Sessions whose queue is full
// are dropped rather than waited on.
func (s *Server) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Printf("Failed to marshal message: %v", err)
		return
	}

	s.mu.Lock()
	stale := make([]*session, 0)
	for sess := range s.sessions {
		select {
		case sess.send <- frame:
		default:
			stale = append(stale, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		s.logger.Println("Dropping surface that stopped draining its queue")
		s.drop(sess)
	}
}

// handleWebSocket upgrades the connection, sends the current document as
// the first frame so a new surface can render immediately, and starts the
// session's read/write loops.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.logger.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	sess := &session{conn: conn, send: make(chan []byte, 16)}

	if doc, err := s.mgr.GetDocument(r.Context()); err == nil {
		if data, err := json.Marshal(doc); err == nil {
			welcome, _ := json.Marshal(Message{
				Type:      MessageTypeDocument,
				Timestamp: time.Now(),
				Data:      data,
			})
			sess.send <- welcome
		}
	}

	s.mu.Lock()
	s.sessions[sess] = struct{}{}
	total := len(s.sessions)
	s.mu.Unlock()
	s.logger.Printf("Surface connected (total: %d)", total)

	go s.writeLoop(sess)
	go s.readLoop(sess)
}

// writeLoop drains the session's queue onto the socket.
func (s *Server) writeLoop(sess *session) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case frame, ok := <-sess.send:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
			err := sess.conn.Write(ctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				s.drop(sess)
				return
			}
		}
	}
}

// readLoop keeps the connection alive and notices client disconnects.
// Surfaces never send anything the server needs to process.
func (s *Server) readLoop(sess *session) {
	defer s.drop(sess)
	for {
		if _, _, err := sess.conn.Read(s.ctx); err != nil {
			return
		}
	}
}

// drop removes a session and closes its connection. Safe to call more than
// once per session.
func (s *Server) drop(sess *session) {
	s.mu.Lock()
	_, live := s.sessions[sess]
	if live {
		delete(s.sessions, sess)
		close(sess.send)
	}
	total := len(s.sessions)
	s.mu.Unlock()

	if live {
		_ = sess.conn.Close(websocket.StatusNormalClosure, "")
		s.logger.Printf("Surface disconnected (total: %d)", total)
	}
}

// handleHealth reports server health and the connected surface count.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"surfaces": s.Connected(),
	})
}

// handleRoot serves a minimal landing page pointing at the endpoints.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprintf(w, `<!DOCTYPE html>
<html>
<head><title>Shelfmark</title></head>
<body>
<h1>Shelfmark surface server</h1>
<p>WebSocket endpoint: <code>ws://%s/ws</code></p>
<p>Health: <a href="/health">/health</a></p>
</body>
</html>`, r.Host)
}

// Addr returns the address the server is listening on.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Connected returns the number of connected surfaces.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
