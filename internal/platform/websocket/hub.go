// Package websocket provides the live feed for patient lists and vital signs.
// Clients subscribe to doctor:{id} and patient:{id} topics and receive
// messages broadcast to those topics.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
)

// Message types.
const (
	TypePatientCreated   = "patient.created"
	TypePatientUpdated   = "patient.updated"
	TypePatientDeleted   = "patient.deleted"
	TypeReadingChanged   = "reading.changed"
	TypeStatusTentative  = "status.tentative"
	TypeStatusRolledBack = "status.rolledback"
	TypeError            = "error"
)

// DoctorTopic carries patient list changes of one doctor.
func DoctorTopic(doctorID uuid.UUID) string { return "doctor:" + doctorID.String() }

// PatientTopic carries reading and status changes of one patient.
func PatientTopic(patientID uuid.UUID) string { return "patient:" + patientID.String() }

// Message is a live update sent to WebSocket clients.
type Message struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage marshals payload into a Message.
func NewMessage(msgType, topic string, payload any) (Message, error) {
	m := Message{Type: msgType, Topic: topic, Timestamp: time.Now().UTC()}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Message{}, err
		}
		m.Payload = raw
	}
	return m, nil
}

// ClientMessage represents an inbound message from a WebSocket client.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Publisher is implemented by the hub and consumed by domain services.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// PatientOwners resolves which doctor a patient belongs to.
type PatientOwners interface {
	DoctorOfPatient(ctx context.Context, patientID uuid.UUID) (uuid.UUID, error)
}

// Conn abstracts a WebSocket connection for testability.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client represents a single WebSocket connection.
type Client struct {
	ID      string
	Topics  []string
	Send    chan []byte
	session *auth.Session
	hub     *Hub
	conn    Conn
}

// UserID is the id of the signed-in user owning the connection.
func (c *Client) UserID() string {
	if c.session == nil {
		return ""
	}
	return c.session.UserID.String()
}

// Hub tracks clients and their topic subscriptions. All operations are
// thread-safe via sync.RWMutex.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	owners  PatientOwners
	logger  zerolog.Logger
}

// NewHub creates a Hub. owners may be nil, in which case patient topics are
// only open to admins.
func NewHub(owners PatientOwners, logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		owners:  owners,
		logger:  logger,
	}
}

// Register adds a client to the hub and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe adds topics to an already-registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, dup := h.clients[topic][client]; dup {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from an already-registered client.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	removeSet := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		removeSet[t] = struct{}{}
		h.removeLocked(t, client)
	}

	remaining := make([]string, 0, len(client.Topics))
	for _, t := range client.Topics {
		if _, rm := removeSet[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

// Authorize reports whether the client's session may follow topic. Doctors
// see their own topic and their own patients; admins see everything.
func (h *Hub) Authorize(ctx context.Context, s *auth.Session, topic string) bool {
	if s == nil {
		return false
	}
	if s.IsAdmin() {
		return true
	}
	kind, rawID, ok := strings.Cut(topic, ":")
	if !ok {
		return false
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return false
	}
	switch kind {
	case "doctor":
		return s.CanAccessDoctor(id)
	case "patient":
		if h.owners == nil {
			return false
		}
		doctorID, err := h.owners.DoctorOfPatient(ctx, id)
		if err != nil {
			return false
		}
		return s.CanAccessDoctor(doctorID)
	default:
		return false
	}
}

// ProcessMessage handles an inbound ClientMessage. Subscriptions to topics
// the client may not see are dropped and reported back as an error message.
func (h *Hub) ProcessMessage(ctx context.Context, client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		allowed := make([]string, 0, len(msg.Topics))
		for _, topic := range msg.Topics {
			if h.Authorize(ctx, client.session, topic) {
				allowed = append(allowed, topic)
				continue
			}
			h.sendTo(client, Message{Type: TypeError, Topic: topic, Payload: json.RawMessage(`{"error":"not allowed"}`), Timestamp: time.Now().UTC()})
		}
		h.Subscribe(client, allowed)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

func (h *Hub) sendTo(client *Client, msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.all[client]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

// Broadcast sends msg to all clients subscribed to msg.Topic. Clients with a
// full buffer miss the message.
func (h *Hub) Broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("websocket: marshal message")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[msg.Topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("websocket: client buffer full, message dropped")
		}
	}
}

// Publish implements Publisher.
func (h *Hub) Publish(_ context.Context, msg Message) error {
	if msg.Topic == "" {
		return errors.New("websocket: message has no topic")
	}
	h.Broadcast(msg)
	return nil
}

// DisconnectUser closes every connection of userID. The read pump notices the
// closed connection and unregisters the client.
func (h *Hub) DisconnectUser(userID string) int {
	h.mu.RLock()
	var victims []*Client
	for client := range h.all {
		if client.UserID() == userID {
			victims = append(victims, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range victims {
		if client.conn != nil {
			_ = client.conn.Close()
		} else {
			h.Unregister(client)
		}
	}
	return len(victims)
}

// FollowSessions closes a user's live connections whenever they are signed
// out or their account is deleted. Call the returned func to stop.
func (h *Hub) FollowSessions(sessions *auth.Sessions) (stop func()) {
	return sessions.Subscribe(func(ev auth.Event) {
		if ev.Kind == auth.EventSignedOut || ev.Kind == auth.EventAccountDeleted {
			if n := h.DisconnectUser(ev.UserID); n > 0 {
				h.logger.Info().Str("user_id", ev.UserID).Int("connections", n).Msg("websocket: closed connections after sign-out")
			}
		}
	})
}

// ClientCount returns the total number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to a specific topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler upgrades authenticated requests to WebSocket connections. Browsers
// cannot set headers on a WebSocket handshake, so the token travels in the
// "token" query parameter.
type Handler struct {
	hub         *Hub
	authn       auth.Authenticator
	revocations *auth.TokenRevocationStore
	sessions    *auth.Sessions
	upgrader    gorillawebsocket.Upgrader
}

func NewHandler(hub *Hub, authn auth.Authenticator, revocations *auth.TokenRevocationStore, sessions *auth.Sessions, allowedOrigins []string) *Handler {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Handler{
		hub:         hub,
		authn:       authn,
		revocations: revocations,
		sessions:    sessions,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || len(origins) == 0 {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
	}
}

// RegisterRoutes registers the WebSocket endpoint.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/ws", h.HandleConnect)
}

// HandleConnect authenticates the token, upgrades the connection, registers
// the client, and starts its pumps.
func (h *Handler) HandleConnect(c echo.Context) error {
	ctx := c.Request().Context()
	raw := c.QueryParam("token")
	if raw == "" {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrMissingToken.Error())
	}
	principal, err := h.authn.Authenticate(ctx, raw)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrInvalidToken.Error())
	}
	if h.revocations != nil && h.revocations.IsRevoked(principal) {
		return echo.NewHTTPError(http.StatusUnauthorized, auth.ErrTokenRevoked.Error())
	}
	session, err := h.sessions.Resolve(ctx, principal)
	if err != nil {
		h.sessions.SignOut(principal, "profile lookup failed")
		return echo.NewHTTPError(http.StatusUnauthorized, "session ended, please sign in again")
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := &Client{
		ID:      uuid.New().String(),
		Topics:  []string{},
		Send:    make(chan []byte, 256),
		session: session,
		hub:     h.hub,
		conn:    ws,
	}
	h.hub.Register(client)

	go h.writePump(client, ws)
	go h.readPump(client, ws)
	return nil
}

func (h *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		h.hub.ProcessMessage(context.Background(), client, msg)
	}
}

func (h *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for data := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, data); err != nil {
			return
		}
	}
}
