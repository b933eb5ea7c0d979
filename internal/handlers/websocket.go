package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/capto/internal/common"
	"github.com/ternarybob/capto/internal/interfaces"
	"github.com/ternarybob/capto/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every pushed frame
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// JobUpdate mirrors the progress record for live clients
type JobUpdate struct {
	JobID       string    `json:"job_id"`
	Status      string    `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Platform    string    `json:"platform,omitempty"`
	Filename    string    `json:"filename,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// WebSocketHandler pushes job lifecycle events to connected clients.
// Progress frames are throttled; lifecycle frames always go through.
type WebSocketHandler struct {
	logger            arbor.ILogger
	clients           map[*websocket.Conn]bool
	clientMutex       map[*websocket.Conn]*sync.Mutex
	mu                sync.RWMutex
	eventService      interfaces.EventService
	progressThrottler *rate.Limiter
	serverInstanceID  string // clients use this to detect server restarts
}

func NewWebSocketHandler(eventService interfaces.EventService, logger arbor.ILogger, config *common.WebSocketConfig) *WebSocketHandler {
	h := &WebSocketHandler{
		logger:           logger,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
	}

	if config != nil && config.ThrottleMs > 0 {
		interval := time.Duration(config.ThrottleMs) * time.Millisecond
		h.progressThrottler = rate.NewLimiter(rate.Every(interval), 1)
		logger.Debug().
			Str("interval", interval.String()).
			Msg("Throttler initialized for job progress events")
	}

	if eventService != nil {
		h.SubscribeToJobEvents()
	}

	return h
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = &sync.Mutex{}
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", h.ClientCount())

	h.sendHello(conn)

	// Handle client disconnection
	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	// Read messages from client (keep connection alive)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// SubscribeToJobEvents forwards tracker events to connected clients
func (h *WebSocketHandler) SubscribeToJobEvents() {
	if h.eventService == nil {
		return
	}

	h.eventService.Subscribe(interfaces.EventJobCreated, h.forwardJobEvent("job_created", false))
	h.eventService.Subscribe(interfaces.EventJobProgress, h.forwardJobEvent("job_progress", true))
	h.eventService.Subscribe(interfaces.EventJobCompleted, h.forwardJobEvent("job_completed", false))
	h.eventService.Subscribe(interfaces.EventJobFailed, h.forwardJobEvent("job_failed", false))
	h.eventService.Subscribe(interfaces.EventJobDeleted, h.forwardJobEvent("job_deleted", false))
}

// forwardJobEvent builds a handler that converts a job snapshot event
// into a client frame. Throttled frames are dropped silently, except
// that a terminal snapshot always goes through so clients never miss
// the final state.
func (h *WebSocketHandler) forwardJobEvent(msgType string, throttled bool) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		job, ok := event.Payload.(models.DownloadJob)
		if !ok {
			h.logger.Warn().Str("type", msgType).Msg("Invalid job event payload type")
			return nil
		}

		if throttled && h.progressThrottler != nil && !job.Phase.IsTerminal() {
			if !h.progressThrottler.Allow() {
				return nil
			}
		}

		h.BroadcastJobUpdate(msgType, job)
		return nil
	}
}

// BroadcastJobUpdate sends one job snapshot to all connected clients
func (h *WebSocketHandler) BroadcastJobUpdate(msgType string, job models.DownloadJob) {
	update := JobUpdate{
		JobID:       job.ID,
		Status:      string(job.Phase),
		Progress:    job.Progress,
		Message:     job.Message,
		Platform:    string(job.Platform),
		Filename:    job.Filename,
		DownloadURL: job.DownloadURL,
		Timestamp:   job.UpdatedAt,
	}

	h.broadcast(WSMessage{Type: msgType, Payload: update})
}

// ClientCount returns the number of connected clients
func (h *WebSocketHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendHello sends the server instance id so reconnecting clients can
// detect a restart and reset their local job state.
func (h *WebSocketHandler) sendHello(conn *websocket.Conn) {
	msg := WSMessage{
		Type: "hello",
		Payload: map[string]string{
			"server_instance_id": h.serverInstanceID,
			"version":            common.GetVersion(),
		},
	}

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal hello message")
		return
	}

	h.mu.RLock()
	mutex := h.clientMutex[conn]
	h.mu.RUnlock()

	if mutex != nil {
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Msg("Failed to send hello")
		}
	}
}

// broadcast writes one frame to every client under its own write lock
func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal websocket message")
		return
	}

	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		mutex := mutexes[i]
		mutex.Lock()
		err := conn.WriteMessage(websocket.TextMessage, data)
		mutex.Unlock()

		if err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
		}
	}
}
