// internal/server/handlers/websocket.go

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"regionalert/internal/adapter/stream"
	"regionalert/internal/domain/alert"
	"regionalert/internal/domain/geo"
	"regionalert/internal/domain/location"
	locationsvc "regionalert/internal/service/location"
)

// Client message types
const (
	msgResponse = "response"
	msgLocation = "location"
	msgWatch    = "watch"
	msgUnwatch  = "unwatch"
)

// WebSocketConfig contains configuration for WebSocket connections
type WebSocketConfig struct {
	// Time allowed to write a message to the peer
	WriteWait time.Duration

	// Time allowed to read the next pong message from the peer
	PongWait time.Duration

	// Send pings to peer with this period
	PingPeriod time.Duration

	// Maximum message size allowed from peer
	MaxMessageSize int64

	// Outbound messages buffered per client before new ones are dropped
	SendBuffer int
}

// DefaultWebSocketConfig returns the default WebSocket configuration
func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		WriteWait:      10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     (60 * time.Second * 9) / 10,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

// ResponseRecorder records alert responses sent over the socket
type ResponseRecorder interface {
	RecordResponse(ctx context.Context, alertID string, r alert.Response) (*alert.EmergencyAlert, error)
}

// LocationUpdater stores locations reported over the socket
type LocationUpdater interface {
	UpdateLocation(ctx context.Context, userID string, u locationsvc.Update) (*location.Record, error)
}

// AlertStreamHandler bridges the alert topics to WebSocket clients. Each
// client receives the global broadcast topic and its own user topic, and may
// watch individual alerts for status and response count updates.
type AlertStreamHandler struct {
	bus       stream.Bus
	responses ResponseRecorder
	locations LocationUpdater
	config    WebSocketConfig
	upgrader  websocket.Upgrader
	logger    *zap.Logger
}

// NewAlertStreamHandler creates a new alert stream handler. A nil
// checkOrigin accepts every origin.
func NewAlertStreamHandler(
	bus stream.Bus,
	responses ResponseRecorder,
	locations LocationUpdater,
	config WebSocketConfig,
	checkOrigin func(r *http.Request) bool,
	logger *zap.Logger,
) *AlertStreamHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	if config.SendBuffer <= 0 {
		config.SendBuffer = DefaultWebSocketConfig().SendBuffer
	}
	return &AlertStreamHandler{
		bus:       bus,
		responses: responses,
		locations: locations,
		config:    config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger: logger,
	}
}

// ServeHTTP upgrades the connection and pumps messages until it closes.
func (h *AlertStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		respondWithError(w, h.logger, http.StatusBadRequest, "Missing user ID", nil)
		return
	}
	if err := alert.ValidateTopicID(userID); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, "Invalid user ID", err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade to websocket", zap.String("user_id", userID), zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	c := &alertClient{
		handler: h,
		conn:    conn,
		send:    make(chan []byte, h.config.SendBuffer),
		done:    make(chan struct{}),
		userID:  userID,
		watches: make(map[string][]func()),
		cancel:  cancel,
		logger:  h.logger.With(zap.String("user_id", userID)),
	}

	for _, topic := range []string{alert.BroadcastTopic, alert.UserTopic(userID)} {
		unsub, err := h.bus.Subscribe(topic, c.enqueue)
		if err != nil {
			c.logger.Error("failed to subscribe client", zap.String("topic", topic), zap.Error(err))
			c.close()
			return
		}
		c.subs = append(c.subs, unsub)
	}

	go c.writePump()

	c.sendJSON(map[string]any{
		"type":   "welcome",
		"userId": userID,
		"time":   time.Now().UTC(),
	})
	c.logger.Info("websocket client connected")

	c.readPump(ctx)
}

type alertClient struct {
	handler *AlertStreamHandler
	conn    *websocket.Conn
	send    chan []byte
	done    chan struct{}
	userID  string
	cancel  context.CancelFunc
	logger  *zap.Logger

	mu      sync.Mutex
	subs    []func()
	watches map[string][]func()

	closeOnce sync.Once
}

// enqueue queues payload for the client without blocking the publisher. A
// client whose buffer is full misses the message.
func (c *alertClient) enqueue(payload []byte) {
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("websocket send buffer full, dropping message")
	}
}

func (c *alertClient) sendJSON(v any) {
	payload, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("failed to encode websocket message", zap.Error(err))
		return
	}
	c.enqueue(payload)
}

func (c *alertClient) sendError(message string, err error) {
	body := map[string]any{"type": "error", "error": message}
	if err != nil {
		body["details"] = err.Error()
	}
	c.sendJSON(body)
}

// readPump reads client messages until the connection fails
func (c *alertClient) readPump(ctx context.Context) {
	config := c.handler.config
	defer c.close()

	c.conn.SetReadLimit(config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		c.processIncomingMessage(ctx, message)
	}
}

// writePump writes queued messages and keeps the connection alive with pings
func (c *alertClient) writePump() {
	config := c.handler.config
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type clientMessage struct {
	Type           string   `json:"type"`
	AlertID        string   `json:"alertId"`
	ResponseType   string   `json:"responseType"`
	Message        string   `json:"message"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	AccuracyMeters *float64 `json:"accuracyMeters"`
	Source         string   `json:"source"`
}

func (m clientMessage) coordinates() *geo.Coordinate {
	if m.Latitude == nil || m.Longitude == nil {
		return nil
	}
	return &geo.Coordinate{Latitude: *m.Latitude, Longitude: *m.Longitude}
}

// processIncomingMessage dispatches one client message
func (c *alertClient) processIncomingMessage(ctx context.Context, message []byte) {
	var msg clientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message", err)
		return
	}

	switch msg.Type {
	case msgResponse:
		c.handleResponse(ctx, msg)
	case msgLocation:
		c.handleLocation(ctx, msg)
	case msgWatch:
		c.watch(msg.AlertID)
	case msgUnwatch:
		c.unwatch(msg.AlertID)
	default:
		c.sendError("unknown message type "+msg.Type, nil)
	}
}

func (c *alertClient) handleResponse(ctx context.Context, msg clientMessage) {
	if msg.AlertID == "" {
		c.sendError("alertId is required", nil)
		return
	}

	a, err := c.handler.responses.RecordResponse(ctx, msg.AlertID, alert.Response{
		UserID:      c.userID,
		Type:        alert.ResponseType(msg.ResponseType),
		Message:     msg.Message,
		Coordinates: msg.coordinates(),
	})
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			c.logger.Error("failed to record websocket response", zap.String("alert_id", msg.AlertID), zap.Error(err))
			c.sendError("failed to record response", nil)
			return
		}
		c.sendError("failed to record response", err)
		return
	}

	c.sendJSON(map[string]any{
		"type":               "response_recorded",
		"alertId":            a.ID,
		"status":             a.Status,
		"verificationStatus": a.Source.VerificationStatus,
	})
}

func (c *alertClient) handleLocation(ctx context.Context, msg clientMessage) {
	coords := msg.coordinates()
	if coords == nil {
		c.sendError("latitude and longitude are required", nil)
		return
	}

	source := location.Source(msg.Source)
	if source == "" {
		source = location.SourceGPS
	}

	rec, err := c.handler.locations.UpdateLocation(ctx, c.userID, locationsvc.Update{
		Coordinates:    *coords,
		Source:         source,
		AccuracyMeters: msg.AccuracyMeters,
	})
	if err != nil {
		if statusFor(err) >= http.StatusInternalServerError {
			c.logger.Error("failed to update websocket location", zap.Error(err))
			c.sendError("failed to update location", nil)
			return
		}
		c.sendError("failed to update location", err)
		return
	}

	c.sendJSON(map[string]any{
		"type":   "location_updated",
		"region": rec.Region.Name,
		"time":   rec.LastUpdated,
	})
}

// watch subscribes the client to the status and response topics of an alert
func (c *alertClient) watch(alertID string) {
	if alertID == "" {
		c.sendError("alertId is required", nil)
		return
	}
	if err := alert.ValidateTopicID(alertID); err != nil {
		c.sendError("invalid alertId", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.watches[alertID]; ok {
		return
	}

	var unsubs []func()
	for _, topic := range []string{alert.StatusTopic(alertID), alert.ResponsesTopic(alertID)} {
		unsub, err := c.handler.bus.Subscribe(topic, c.enqueue)
		if err != nil {
			for _, u := range unsubs {
				u()
			}
			c.logger.Error("failed to watch alert", zap.String("alert_id", alertID), zap.Error(err))
			c.sendError("failed to watch alert", nil)
			return
		}
		unsubs = append(unsubs, unsub)
	}
	c.watches[alertID] = unsubs

	payload, _ := json.Marshal(map[string]string{"type": "watching", "alertId": alertID})
	c.enqueue(payload)
}

func (c *alertClient) unwatch(alertID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, unsub := range c.watches[alertID] {
		unsub()
	}
	delete(c.watches, alertID)
}

// close releases subscriptions and the connection. Safe to call from both pumps.
func (c *alertClient) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.cancel()

		c.mu.Lock()
		for _, unsub := range c.subs {
			unsub()
		}
		for _, unsubs := range c.watches {
			for _, unsub := range unsubs {
				unsub()
			}
		}
		c.watches = map[string][]func(){}
		c.mu.Unlock()

		_ = c.conn.Close()
		c.logger.Info("websocket client disconnected")
	})
}
