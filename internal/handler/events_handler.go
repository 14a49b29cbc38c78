package handler

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/notification"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

// EventsHandler pushes agent events (connectivity transitions, sync-run
// summaries) to connected UI shells over WebSocket. It doubles as a
// notification sink and a connectivity subscriber.
type EventsHandler struct {
	log      zerolog.Logger
	upgrader gorillaws.Upgrader

	mu    sync.Mutex
	conns map[*gorillaws.Conn]struct{}

	// writeMu serializes writes: broadcasts and pong replies may race on
	// the same connection otherwise.
	writeMu sync.Mutex
}

// NewEventsHandler creates a new EventsHandler. allowedOrigins empty means
// all origins are accepted (dev default).
func NewEventsHandler(log zerolog.Logger, allowedOrigins []string) *EventsHandler {
	h := &EventsHandler{
		log:   log.With().Str("component", "events").Logger(),
		conns: make(map[*gorillaws.Conn]struct{}),
	}
	h.upgrader = gorillaws.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
	return h
}

// Stream godoc
// GET /ws/v1/events
// Upgrades to WebSocket and streams events until the peer disconnects.
func (h *EventsHandler) Stream(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.conns[conn] = struct{}{}
	h.mu.Unlock()

	h.log.Debug().Msg("UI event stream connected")

	// Reader loop: only pings are expected from the UI; any read error
	// means the peer went away.
	go func() {
		defer h.drop(conn)
		for {
			var envelope ws.RequestEnvelope
			if err := ws.ReadJSON(conn, &envelope); err != nil {
				return
			}
			if envelope.Action == ws.ActionPing {
				h.writeMu.Lock()
				_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})
				h.writeMu.Unlock()
			}
		}
	}()
}

// SyncCompleted implements notification.Notifier.
func (h *EventsHandler) SyncCompleted(synced, failed int) {
	h.broadcast(ws.SyncResultEvent{
		Event:   ws.EventSyncResult,
		Synced:  synced,
		Failed:  failed,
		Message: notification.Summary(synced, failed),
	})
}

// ConnectivityChanged is wired as a Connectivity Observer subscriber.
func (h *EventsHandler) ConnectivityChanged(online bool) {
	h.broadcast(ws.ConnectivityEvent{Event: ws.EventConnectivity, Online: online})
}

func (h *EventsHandler) broadcast(v any) {
	h.mu.Lock()
	conns := make([]*gorillaws.Conn, 0, len(h.conns))
	for conn := range h.conns {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	for _, conn := range conns {
		h.writeMu.Lock()
		err := ws.WriteTyped(conn, v)
		h.writeMu.Unlock()
		if err != nil {
			h.drop(conn)
		}
	}
}

func (h *EventsHandler) drop(conn *gorillaws.Conn) {
	h.mu.Lock()
	if _, ok := h.conns[conn]; ok {
		delete(h.conns, conn)
		conn.Close()
	}
	h.mu.Unlock()
}
