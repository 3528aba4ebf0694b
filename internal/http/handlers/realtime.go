package handlers

import (
	"net/http"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/Siencmd/darkbroad/internal/coordinator"
	"github.com/Siencmd/darkbroad/internal/listener"
	"github.com/Siencmd/darkbroad/internal/pkg/logger"
	"github.com/Siencmd/darkbroad/internal/realtime"
)

// SSEGauge tracks connected render streams.
type SSEGauge interface {
	SetSSEClients(n int)
}

// RealtimeHandler streams coordinator renders to browser sessions.
type RealtimeHandler struct {
	log   *logger.Logger
	hub   *realtime.SSEHub
	gauge SSEGauge

	mu      sync.Mutex
	clients map[string]*realtime.SSEClient // key: session id
	actorID string
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, gauge SSEGauge) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		gauge:   gauge,
		clients: make(map[string]*realtime.SSEClient),
	}
}

// GET /api/sse/stream?actor=<id>&session=<id>
//
// A session that reconnects replaces its previous stream.
func (h *RealtimeHandler) SSEStream(c *gin.Context) {
	actorID := strings.TrimSpace(c.Query("actor"))
	if actorID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing actor"})
		return
	}
	sessionID := strings.TrimSpace(c.Query("session"))

	client := h.hub.NewSSEClient(actorID)
	if sessionID == "" {
		sessionID = client.ID.String()
	}

	h.mu.Lock()
	if existing, ok := h.clients[sessionID]; ok {
		h.hub.CloseClient(existing)
	}
	h.clients[sessionID] = client
	h.mu.Unlock()

	h.hub.AddChannel(client, realtime.ActorChannel(actorID))
	h.updateGauge()
	h.log.Info("SSEStream open", "actor_id", actorID, "session_id", sessionID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	if h.clients[sessionID] == client {
		delete(h.clients, sessionID)
	}
	h.mu.Unlock()
	h.hub.CloseClient(client)
	h.updateGauge()
}

func (h *RealtimeHandler) updateGauge() {
	if h.gauge == nil {
		return
	}
	h.mu.Lock()
	n := len(h.clients)
	h.mu.Unlock()
	h.gauge.SetSSEClients(n)
}

// RenderChange forwards a coordinator render to the acting session's channel.
func (h *RealtimeHandler) RenderChange(change coordinator.Change) {
	actorID := change.Status.ActorID
	if actorID == "" {
		return
	}
	h.mu.Lock()
	h.actorID = actorID
	h.mu.Unlock()

	event := realtime.SSEEventSubjectsRendered
	var data any = change
	if change.Source == coordinator.SourceStatus {
		event = realtime.SSEEventSyncStatus
		data = change.Status
	}
	h.hub.Broadcast(realtime.SSEMessage{
		Channel: realtime.ActorChannel(actorID),
		Event:   event,
		Data:    data,
	})
}

// RenderCount forwards a live submission count to the last rendered actor.
func (h *RealtimeHandler) RenderCount(count listener.ItemCount) {
	h.mu.Lock()
	actorID := h.actorID
	h.mu.Unlock()
	if actorID == "" {
		return
	}
	h.hub.Broadcast(realtime.SSEMessage{
		Channel: realtime.ActorChannel(actorID),
		Event:   realtime.SSEEventSubmissionCount,
		Data:    count,
	})
}
