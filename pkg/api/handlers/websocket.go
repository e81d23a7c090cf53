package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vedmemory/ved/pkg/api/events"
	"github.com/vedmemory/ved/pkg/logger"
)

const (
	wsDefaultMaxSessions = 100
	wsDefaultPing        = 30 * time.Second
	wsDefaultPongWait    = 10 * time.Second
	wsWriteWait          = 10 * time.Second
	wsOutboxSize         = 32
	wsMaxFrame           = 64 << 10
)

var errTooManySessions = errors.New("websocket: too many sessions")

// WebSocketConfig configures the event stream endpoint.
type WebSocketConfig struct {
	AllowedOrigins []string
	MaxConnections int
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// clientCommand is what a client may send over the socket, e.g.
// {"type":"subscribe","project_id":3}.
type clientCommand struct {
	Type      string `json:"type"`
	ProjectID int64  `json:"project_id,omitempty"`
}

// session is one connected user. With an empty project filter every event
// of the user is delivered.
type session struct {
	conn   *websocket.Conn
	userID int64
	outbox chan []byte

	mu       sync.RWMutex
	projects map[int64]bool
	closed   bool
}

func newSession(conn *websocket.Conn, userID int64) *session {
	return &session{
		conn:     conn,
		userID:   userID,
		outbox:   make(chan []byte, wsOutboxSize),
		projects: map[int64]bool{},
	}
}

func (s *session) follow(projectID int64) {
	if projectID <= 0 {
		return
	}
	s.mu.Lock()
	s.projects[projectID] = true
	s.mu.Unlock()
}

func (s *session) unfollow(projectID int64) {
	s.mu.Lock()
	delete(s.projects, projectID)
	s.mu.Unlock()
}

func (s *session) wants(ev events.Event) bool {
	if ev.UserID != s.userID {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.projects) == 0 || s.projects[ev.ProjectID]
}

// enqueue reports false when the outbox is full or already closed.
func (s *session) enqueue(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.outbox <- frame:
		return true
	default:
		return false
	}
}

func (s *session) shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.outbox)
	s.mu.Unlock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// apply handles one client frame. Unknown or malformed frames are ignored.
func (s *session) apply(raw []byte) {
	var cmd clientCommand
	if json.Unmarshal(raw, &cmd) != nil {
		return
	}
	switch strings.ToLower(strings.TrimSpace(cmd.Type)) {
	case "subscribe":
		s.follow(cmd.ProjectID)
	case "unsubscribe":
		s.unfollow(cmd.ProjectID)
	}
}

// hub tracks live sessions and fans events out to them.
type hub struct {
	mu       sync.RWMutex
	sessions map[*session]struct{}
	limit    int
}

func newHub(limit int) *hub {
	if limit <= 0 {
		limit = wsDefaultMaxSessions
	}
	return &hub{sessions: map[*session]struct{}{}, limit: limit}
}

func (h *hub) join(s *session) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.sessions) >= h.limit {
		return errTooManySessions
	}
	h.sessions[s] = struct{}{}
	return nil
}

func (h *hub) leave(s *session) {
	h.mu.Lock()
	_, ok := h.sessions[s]
	delete(h.sessions, s)
	h.mu.Unlock()
	if ok {
		s.shutdown()
	}
}

func (h *hub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

func (h *hub) full() bool {
	return h.size() >= h.limit
}

func (h *hub) snapshot() []*session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*session, 0, len(h.sessions))
	for s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// publish queues ev on every interested session. A session whose outbox is
// full is disconnected.
func (h *hub) publish(ev events.Event) error {
	frame, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	for _, s := range h.snapshot() {
		if s.wants(ev) && !s.enqueue(frame) {
			h.leave(s)
		}
	}
	return nil
}

func (h *hub) closeAll() {
	for _, s := range h.snapshot() {
		h.leave(s)
	}
}

// WebSocketHandler streams the caller's data-change events.
type WebSocketHandler struct {
	log      logger.Logger
	hub      *hub
	upgrader websocket.Upgrader
	ping     time.Duration
	pongWait time.Duration
}

// NewWebSocketHandler creates a websocket handler.
func NewWebSocketHandler(log logger.Logger, cfg WebSocketConfig) *WebSocketHandler {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = wsDefaultPing
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = wsDefaultPongWait
	}
	origins := append([]string(nil), cfg.AllowedOrigins...)
	return &WebSocketHandler{
		log:      logger.Component(log, "websocket"),
		hub:      newHub(cfg.MaxConnections),
		ping:     cfg.PingInterval,
		pongWait: cfg.PongTimeout,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return originAllowed(r, origins) },
		},
	}
}

// ServeHTTP handles GET /api/v1/ws
// @Summary Event stream
// @Description Websocket stream of conversation.saved, summary.updated and project.deleted events for the caller. Send {"type":"subscribe","project_id":N} to narrow it.
// @Tags events
// @Security BearerAuth
// @Param access_token query string false "Token for clients that cannot set headers"
// @Success 101 "Switching protocols"
// @Failure 401 {object} response.ErrorResponse "Not authenticated"
// @Router /api/v1/ws [get]
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	u, ok := currentUser(w, r)
	if !ok {
		return
	}
	switch {
	case !websocket.IsWebSocketUpgrade(r):
		http.Error(w, "websocket upgrade required", http.StatusBadRequest)
		return
	case h.hub.full():
		http.Error(w, errTooManySessions.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	s := newSession(conn, u.ID)
	if err := h.hub.join(s); err != nil {
		// Lost the race for the last slot between full() and join().
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(wsWriteWait))
		_ = conn.Close()
		return
	}
	h.log.Debug("websocket connected", "user_id", u.ID)

	go h.writeLoop(s)
	h.readLoop(s)
}

func (h *WebSocketHandler) readLoop(s *session) {
	defer h.hub.leave(s)

	wait := h.ping + h.pongWait
	extend := func(string) error { return s.conn.SetReadDeadline(time.Now().Add(wait)) }

	s.conn.SetReadLimit(wsMaxFrame)
	_ = extend("")
	s.conn.SetPongHandler(extend)

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("websocket read failed", "user_id", s.userID, "error", err)
			}
			return
		}
		s.apply(raw)
	}
}

func (h *WebSocketHandler) writeLoop(s *session) {
	ticker := time.NewTicker(h.ping)
	defer ticker.Stop()
	defer h.hub.leave(s)

	for {
		select {
		case frame, open := <-s.outbox:
			if !open {
				_ = s.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
					time.Now().Add(wsWriteWait))
				return
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if s.conn.WriteMessage(websocket.TextMessage, frame) != nil {
				return
			}
		case <-ticker.C:
			if s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)) != nil {
				return
			}
		}
	}
}

// Broadcast sends ev to the sessions of ev.UserID.
func (h *WebSocketHandler) Broadcast(ev events.Event) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	return h.hub.publish(ev)
}

// Forward relays events from ch until ctx is done or ch is closed.
func (h *WebSocketHandler) Forward(ctx context.Context, ch <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := h.Broadcast(ev); err != nil {
				h.log.Warn("websocket broadcast failed", "type", ev.Type, "error", err)
			}
		}
	}
}

// Count returns the number of open connections.
func (h *WebSocketHandler) Count() int { return h.hub.size() }

// Close disconnects every session.
func (h *WebSocketHandler) Close() { h.hub.closeAll() }

// originAllowed accepts requests without an Origin header, listed origins
// and same-host origins.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		a = strings.TrimSpace(a)
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

var _ http.Handler = (*WebSocketHandler)(nil)
