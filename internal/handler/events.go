package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yourorg/towdesk/internal/security"
	"github.com/yourorg/towdesk/internal/service"
)

// subscriberBuffer is the per-connection event queue depth. A
// subscriber that falls this far behind is dropped rather than
// blocking publishers.
const subscriberBuffer = 32

// Hub fans call events out to live dispatch board subscribers,
// partitioned by tenant.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan *service.CallEvent]struct{}
	logger      *slog.Logger
}

// NewHub creates a new event hub
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[chan *service.CallEvent]struct{}),
		logger:      logger,
	}
}

// Publish delivers an event to every subscriber of the tenant. Slow
// subscribers are skipped; the dispatch board reloads on reconnect.
func (h *Hub) Publish(tenantID string, event *service.CallEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subscribers[tenantID] {
		select {
		case ch <- event:
		default:
			h.logger.Warn("event subscriber lagging, dropping event",
				slog.String("tenant_id", tenantID),
				slog.String("event_type", event.Type),
			)
		}
	}
}

func (h *Hub) subscribe(tenantID string) chan *service.CallEvent {
	ch := make(chan *service.CallEvent, subscriberBuffer)
	h.mu.Lock()
	if h.subscribers[tenantID] == nil {
		h.subscribers[tenantID] = make(map[chan *service.CallEvent]struct{})
	}
	h.subscribers[tenantID][ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(tenantID string, ch chan *service.CallEvent) {
	h.mu.Lock()
	delete(h.subscribers[tenantID], ch)
	if len(h.subscribers[tenantID]) == 0 {
		delete(h.subscribers, tenantID)
	}
	h.mu.Unlock()
}

// EventsHandler handles WebSocket connections for the live dispatch
// board.
type EventsHandler struct {
	hub            *Hub
	guard          *security.Guard
	logger         *slog.Logger
	allowedOrigins []string
}

// NewEventsHandler creates a new events handler
func NewEventsHandler(hub *Hub, guard *security.Guard, logger *slog.Logger, allowedOrigins []string) *EventsHandler {
	return &EventsHandler{
		hub:            hub,
		guard:          guard,
		logger:         logger,
		allowedOrigins: allowedOrigins,
	}
}

// upgrader is initialized per-request to use instance's allowed origins
func (h *EventsHandler) getUpgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Allow requests with no origin (e.g., non-browser clients)
				return true
			}
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			h.logger.Warn("websocket origin rejected", slog.String("origin", origin))
			return false
		},
	}
}

// ServeHTTP handles GET /ws/dispatch. The connection is scoped to the
// caller's resolved tenant; events for other tenants never reach it.
func (h *EventsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tc, err := resolveTenant(r, h.guard)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	upgrader := h.getUpgrader()
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer ws.Close()

	ch := h.hub.subscribe(tc.TenantID)
	defer h.hub.unsubscribe(tc.TenantID, ch)

	h.logger.Debug("dispatch board connected",
		slog.String("tenant_id", tc.TenantID),
		slog.String("user_id", tc.UserID),
	)

	// Drain client frames so close and pong frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case event := <-ch:
			if err := ws.WriteJSON(event); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Debug("websocket closed", slog.String("tenant_id", tc.TenantID))
				}
				return
			}
		case <-ticker.C:
			_ = ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second))
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
