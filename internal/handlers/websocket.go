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

	"github.com/ternarybob/equityresearch/internal/interfaces"
	"github.com/ternarybob/equityresearch/internal/models"
)

// Run events are published synchronously on the run goroutine, so a stalled
// client must not hold a write longer than this
const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// WSMessage is the envelope for every message pushed to the page
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type WebSocketHandler struct {
	logger           arbor.ILogger
	runner           ResearchRunner
	clients          map[*websocket.Conn]bool
	clientMutex      map[*websocket.Conn]*sync.Mutex
	mu               sync.RWMutex
	eventService     interfaces.EventService
	subscriptionID   string
	serverInstanceID string
	writeWait        time.Duration
}

// NewWebSocketHandler creates the handler and subscribes it to all run events.
// eventService may be nil, in which case only the initial status is sent.
func NewWebSocketHandler(eventService interfaces.EventService, runner ResearchRunner, logger arbor.ILogger) (*WebSocketHandler, error) {
	h := &WebSocketHandler{
		logger:           logger,
		runner:           runner,
		clients:          make(map[*websocket.Conn]bool),
		clientMutex:      make(map[*websocket.Conn]*sync.Mutex),
		eventService:     eventService,
		serverInstanceID: uuid.New().String(),
		writeWait:        writeWait,
	}

	if eventService != nil {
		id, err := eventService.Subscribe(interfaces.EventAll, func(ctx context.Context, event models.RunEvent) error {
			h.BroadcastRunEvent(event)
			return nil
		})
		if err != nil {
			return nil, err
		}
		h.subscriptionID = id
	}

	return h, nil
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
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	h.sendStatus(conn)

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

// BroadcastRunEvent pushes a run progress event to every connected client
func (h *WebSocketHandler) BroadcastRunEvent(event models.RunEvent) {
	h.broadcast(WSMessage{Type: "run_event", Payload: event})
}

// Close drops the event subscription and disconnects all clients
func (h *WebSocketHandler) Close() {
	if h.eventService != nil && h.subscriptionID != "" {
		if err := h.eventService.Unsubscribe(h.subscriptionID); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to unsubscribe WebSocket handler")
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		conn.Close()
	}
	h.clients = make(map[*websocket.Conn]bool)
	h.clientMutex = make(map[*websocket.Conn]*sync.Mutex)
}

func (h *WebSocketHandler) broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal WebSocket message")
		return
	}

	h.mu.RLock()
	targets := make([]*websocket.Conn, 0, len(h.clients))
	for conn := range h.clients {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := h.write(conn, data); err != nil {
			h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Dropping WebSocket client after failed write")
			h.drop(conn)
		}
	}
}

// drop forgets a client; its read loop then exits on the closed connection
func (h *WebSocketHandler) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	delete(h.clientMutex, conn)
	h.mu.Unlock()
	conn.Close()
}

// sendStatus sends the current runner state to a newly connected client
func (h *WebSocketHandler) sendStatus(conn *websocket.Conn) {
	data, err := json.Marshal(WSMessage{
		Type: "status",
		Payload: map[string]interface{}{
			"runner":             h.runner.Status(),
			"server_instance_id": h.serverInstanceID,
		},
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal initial status")
		return
	}

	if err := h.write(conn, data); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to send initial status")
	}
}

// write serializes writes per connection; gorilla connections allow one concurrent writer
func (h *WebSocketHandler) write(conn *websocket.Conn, data []byte) error {
	h.mu.RLock()
	mutex, ok := h.clientMutex[conn]
	h.mu.RUnlock()
	if !ok {
		return nil
	}

	mutex.Lock()
	defer mutex.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(h.writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}
