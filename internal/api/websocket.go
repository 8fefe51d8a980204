package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mesh-intelligence/backlog/internal/events"
)

const (
	feedWriteWait  = 10 * time.Second
	feedPongWait   = 60 * time.Second
	feedPingPeriod = feedPongWait * 9 / 10
	feedReadLimit  = 512
)

// ChangeMessage is what the change feed writes for every committed change.
// Clients react by reloading the affected views.
type ChangeMessage struct {
	Event     string    `json:"event"`
	ProjectID string    `json:"project_id"`
	SprintID  string    `json:"sprint_id,omitempty"`
	StoryIDs  []string  `json:"story_ids,omitempty"`
	Time      time.Time `json:"time"`
}

// WSHandler serves the change feed at GET /api/ws. The project_id query
// parameter picks the project to follow; without it the connection follows
// every project. The feed is one-way: anything the client sends is
// discarded.
type WSHandler struct {
	upgrader  websocket.Upgrader
	publisher events.Publisher
	logger    *slog.Logger

	mu    sync.Mutex
	feeds map[*feed]struct{}
}

// feed is one connection and its subscription.
type feed struct {
	conn      *websocket.Conn
	projectID string
	events    <-chan events.Event
	done      chan struct{}
	once      sync.Once
}

// NewWSHandler creates a change feed over pub.
func NewWSHandler(pub events.Publisher, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		publisher: pub,
		logger:    logger,
		feeds:     make(map[*feed]struct{}),
	}
}

// ServeHTTP subscribes before completing the handshake, so no change
// committed after the client connects is missed.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	projectID := r.URL.Query().Get("project_id")
	if projectID == "" {
		projectID = events.AllProjects
	}
	ch := h.publisher.Subscribe(projectID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.publisher.Unsubscribe(projectID, ch)
		h.logger.Warn("change feed upgrade failed", "error", err)
		return
	}

	f := &feed{conn: conn, projectID: projectID, events: ch, done: make(chan struct{})}
	h.mu.Lock()
	h.feeds[f] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("change feed opened", "project_id", projectID)

	go h.drain(f)
	go h.pump(f)
}

// drain reads until the client goes away. Reading is what processes pongs
// and close frames.
func (h *WSHandler) drain(f *feed) {
	defer h.drop(f)

	f.conn.SetReadLimit(feedReadLimit)
	_ = f.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	f.conn.SetPongHandler(func(string) error {
		return f.conn.SetReadDeadline(time.Now().Add(feedPongWait))
	})
	for {
		if _, _, err := f.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("change feed read failed", "project_id", f.projectID, "error", err)
			}
			return
		}
	}
}

// pump is the connection's only writer: it sends events and keepalive
// pings until the feed is dropped or the subscription is closed.
func (h *WSHandler) pump(f *feed) {
	ticker := time.NewTicker(feedPingPeriod)
	defer ticker.Stop()
	defer h.drop(f)

	for {
		select {
		case <-f.done:
			return
		case ev, ok := <-f.events:
			if !ok {
				return
			}
			_ = f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := f.conn.WriteJSON(ChangeMessage{
				Event:     string(ev.Type),
				ProjectID: ev.ProjectID,
				SprintID:  ev.SprintID,
				StoryIDs:  ev.StoryIDs,
				Time:      ev.Time,
			}); err != nil {
				return
			}
		case <-ticker.C:
			_ = f.conn.SetWriteDeadline(time.Now().Add(feedWriteWait))
			if err := f.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// drop unregisters a feed and releases its subscription and connection.
// Safe to call more than once.
func (h *WSHandler) drop(f *feed) {
	f.once.Do(func() {
		h.mu.Lock()
		delete(h.feeds, f)
		h.mu.Unlock()

		h.publisher.Unsubscribe(f.projectID, f.events)
		close(f.done)
		_ = f.conn.Close()
		h.logger.Debug("change feed closed", "project_id", f.projectID)
	})
}

// ConnectionCount returns the number of open feeds.
func (h *WSHandler) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.feeds)
}

// Close drops every open feed.
func (h *WSHandler) Close() {
	h.mu.Lock()
	open := make([]*feed, 0, len(h.feeds))
	for f := range h.feeds {
		open = append(open, f)
	}
	h.mu.Unlock()

	for _, f := range open {
		h.drop(f)
	}
}
