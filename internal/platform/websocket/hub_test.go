package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/wardwatch/wardwatch/internal/platform/auth"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type mockOwners map[uuid.UUID]uuid.UUID

func (m mockOwners) DoctorOfPatient(_ context.Context, patientID uuid.UUID) (uuid.UUID, error) {
	d, ok := m[patientID]
	if !ok {
		return uuid.Nil, errors.New("not found")
	}
	return d, nil
}

type fakeConn struct {
	mu     sync.Mutex
	closed bool
}

func (f *fakeConn) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (f *fakeConn) WriteMessage(int, []byte) error    { return nil }
func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func newClient(hub *Hub, s *auth.Session, topics ...string) *Client {
	return &Client{
		ID:      uuid.NewString(),
		Topics:  topics,
		Send:    make(chan []byte, 8),
		session: s,
		hub:     hub,
	}
}

func doctorSession(id uuid.UUID) *auth.Session {
	return &auth.Session{UserID: id, Role: auth.RoleDoctor, Capability: auth.CapabilityDoctor}
}

func readMessage(t *testing.T, ch chan []byte) Message {
	t.Helper()
	select {
	case data := <-ch:
		var m Message
		if err := json.Unmarshal(data, &m); err != nil {
			t.Fatalf("decode message: %v", err)
		}
		return m
	case <-time.After(time.Second):
		t.Fatal("expected a message, got none")
	}
	return Message{}
}

// ---------------------------------------------------------------------------
// Hub tests
// ---------------------------------------------------------------------------

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	doctorID := uuid.New()
	client := newClient(hub, doctorSession(doctorID), DoctorTopic(doctorID))

	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", hub.ClientCount())
	}
	if hub.TopicCount(DoctorTopic(doctorID)) != 1 {
		t.Fatalf("expected 1 subscriber, got %d", hub.TopicCount(DoctorTopic(doctorID)))
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Fatalf("expected 0 clients, got %d", hub.ClientCount())
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send channel to be closed")
	}
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	patientA, patientB := uuid.New(), uuid.New()

	sub := newClient(hub, nil, PatientTopic(patientA))
	other := newClient(hub, nil, PatientTopic(patientB))
	hub.Register(sub)
	hub.Register(other)

	msg, err := NewMessage(TypeReadingChanged, PatientTopic(patientA), map[string]string{"status": "Critical"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := hub.Publish(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := readMessage(t, sub.Send)
	if got.Type != TypeReadingChanged {
		t.Errorf("expected %s, got %s", TypeReadingChanged, got.Type)
	}
	if !strings.Contains(string(got.Payload), "Critical") {
		t.Errorf("expected payload to carry status, got %s", got.Payload)
	}
	select {
	case <-other.Send:
		t.Error("expected non-subscriber to receive nothing")
	default:
	}
}

func TestHub_PublishRequiresTopic(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	if err := hub.Publish(context.Background(), Message{Type: TypePatientCreated}); err == nil {
		t.Error("expected error for message without topic")
	}
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	topic := DoctorTopic(uuid.New())
	client := &Client{ID: "slow", Topics: []string{topic}, Send: make(chan []byte, 1)}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Broadcast(Message{Type: TypePatientUpdated, Topic: topic})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a full client buffer")
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	client := newClient(hub, nil)
	hub.Register(client)

	hub.Subscribe(client, []string{"a", "b", "a"})
	if len(client.Topics) != 2 {
		t.Fatalf("expected 2 topics without duplicates, got %v", client.Topics)
	}
	hub.Unsubscribe(client, []string{"a"})
	if hub.TopicCount("a") != 0 || hub.TopicCount("b") != 1 {
		t.Errorf("expected only b to remain, got a=%d b=%d", hub.TopicCount("a"), hub.TopicCount("b"))
	}
	if len(client.Topics) != 1 || client.Topics[0] != "b" {
		t.Errorf("expected topics [b], got %v", client.Topics)
	}
}

func TestHub_Authorize(t *testing.T) {
	doctorID, otherDoctor := uuid.New(), uuid.New()
	ownPatient, foreignPatient := uuid.New(), uuid.New()
	hub := NewHub(mockOwners{ownPatient: doctorID, foreignPatient: otherDoctor}, zerolog.Nop())

	doctor := doctorSession(doctorID)
	admin := &auth.Session{UserID: uuid.New(), Role: auth.RoleAdmin, Capability: auth.CapabilityAdmin}

	tests := []struct {
		name    string
		session *auth.Session
		topic   string
		want    bool
	}{
		{"own doctor topic", doctor, DoctorTopic(doctorID), true},
		{"other doctor topic", doctor, DoctorTopic(otherDoctor), false},
		{"own patient", doctor, PatientTopic(ownPatient), true},
		{"foreign patient", doctor, PatientTopic(foreignPatient), false},
		{"unknown patient", doctor, PatientTopic(uuid.New()), false},
		{"malformed topic", doctor, "patients", false},
		{"bad id", doctor, "doctor:abc", false},
		{"unknown kind", doctor, "ward:" + doctorID.String(), false},
		{"admin any doctor", admin, DoctorTopic(otherDoctor), true},
		{"admin any patient", admin, PatientTopic(foreignPatient), true},
		{"no session", nil, DoctorTopic(doctorID), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hub.Authorize(context.Background(), tt.session, tt.topic); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestHub_ProcessMessageRejectsForeignTopics(t *testing.T) {
	doctorID := uuid.New()
	hub := NewHub(nil, zerolog.Nop())
	client := newClient(hub, doctorSession(doctorID))
	hub.Register(client)

	foreign := DoctorTopic(uuid.New())
	hub.ProcessMessage(context.Background(), client, ClientMessage{
		Action: "subscribe",
		Topics: []string{DoctorTopic(doctorID), foreign},
	})

	if hub.TopicCount(DoctorTopic(doctorID)) != 1 {
		t.Error("expected own topic to be subscribed")
	}
	if hub.TopicCount(foreign) != 0 {
		t.Error("expected foreign topic to be refused")
	}
	got := readMessage(t, client.Send)
	if got.Type != TypeError || got.Topic != foreign {
		t.Errorf("expected error for %s, got %+v", foreign, got)
	}

	hub.ProcessMessage(context.Background(), client, ClientMessage{Action: "unsubscribe", Topics: []string{DoctorTopic(doctorID)}})
	if hub.TopicCount(DoctorTopic(doctorID)) != 0 {
		t.Error("expected unsubscribe to remove topic")
	}
}

func TestHub_FollowSessionsDisconnectsUser(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	sessions := auth.NewSessions(nil, auth.NewTokenRevocationStore(), nil, time.Hour, zerolog.Nop())
	stop := hub.FollowSessions(sessions)

	userID, bystanderID := uuid.New(), uuid.New()
	conn := &fakeConn{}
	client := newClient(hub, doctorSession(userID))
	client.conn = conn
	bystanderConn := &fakeConn{}
	bystander := newClient(hub, doctorSession(bystanderID))
	bystander.conn = bystanderConn
	hub.Register(client)
	hub.Register(bystander)

	sessions.EndAllSessions(userID, auth.EventSignedOut, "logout")
	if !conn.isClosed() {
		t.Error("expected signed-out user's connection to be closed")
	}
	if bystanderConn.isClosed() {
		t.Error("expected other users to stay connected")
	}

	stop()
	if sessions.SubscriberCount() != 0 {
		t.Errorf("expected 0 subscribers after stop, got %d", sessions.SubscriberCount())
	}
}

func TestHub_DisconnectUserWithoutConn(t *testing.T) {
	hub := NewHub(nil, zerolog.Nop())
	userID := uuid.New()
	hub.Register(newClient(hub, doctorSession(userID)))

	if n := hub.DisconnectUser(userID.String()); n != 1 {
		t.Fatalf("expected 1 disconnected, got %d", n)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("expected client to be unregistered, got %d", hub.ClientCount())
	}
}

// ---------------------------------------------------------------------------
// Handler tests
// ---------------------------------------------------------------------------

type mockProfiles map[uuid.UUID]*auth.Profile

func (m mockProfiles) ProfileByID(_ context.Context, id uuid.UUID) (*auth.Profile, error) {
	p, ok := m[id]
	if !ok {
		return nil, auth.ErrProfileNotFound
	}
	return p, nil
}

func (m mockProfiles) ProfileByEmail(_ context.Context, email string) (*auth.Profile, error) {
	for _, p := range m {
		if p.Email == email {
			return p, nil
		}
	}
	return nil, auth.ErrProfileNotFound
}

func newTestServer(t *testing.T, profiles mockProfiles) (*Hub, *auth.TokenIssuer, *httptest.Server) {
	t.Helper()
	issuer := auth.NewTokenIssuer([]byte("0123456789abcdef0123456789abcdef"), "wardwatch", time.Hour)
	revocations := auth.NewTokenRevocationStore()
	sessions := auth.NewSessions(profiles, revocations, nil, time.Hour, zerolog.Nop())
	hub := NewHub(nil, zerolog.Nop())

	e := echo.New()
	NewHandler(hub, issuer, revocations, sessions, nil).RegisterRoutes(e)
	server := httptest.NewServer(e)
	t.Cleanup(server.Close)
	return hub, issuer, server
}

func TestHandler_RejectsMissingToken(t *testing.T) {
	_, _, server := newTestServer(t, mockProfiles{})

	resp, err := http.Get(server.URL + "/ws")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHandler_RejectsUnknownProfile(t *testing.T) {
	_, issuer, server := newTestServer(t, mockProfiles{})
	tok, err := issuer.Issue(uuid.New(), "ghost@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	resp, err := http.Get(server.URL + "/ws?token=" + tok.Token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestHandler_FullUpgradeWithDialer(t *testing.T) {
	doctorID := uuid.New()
	profiles := mockProfiles{doctorID: {ID: doctorID, Email: "dr@example.com", Name: "Dr. Mehta", Role: auth.RoleDoctor}}
	hub, issuer, server := newTestServer(t, profiles)

	tok, err := issuer.Issue(doctorID, "dr@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?token=" + tok.Token

	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	topic := DoctorTopic(doctorID)
	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{topic}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.TopicCount(topic) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("expected 1 subscriber on %s, got %d", topic, hub.TopicCount(topic))
		}
		time.Sleep(10 * time.Millisecond)
	}

	msg, _ := NewMessage(TypePatientCreated, topic, map[string]string{"id": "p1"})
	hub.Broadcast(msg)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var received Message
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	if received.Type != TypePatientCreated {
		t.Fatalf("expected %s, got %s", TypePatientCreated, received.Type)
	}
}
