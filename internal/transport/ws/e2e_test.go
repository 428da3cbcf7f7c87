package ws_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/vedran77/duet/internal/domain"
	"github.com/vedran77/duet/internal/repository/badgerdb"
	"github.com/vedran77/duet/internal/service"
	"github.com/vedran77/duet/internal/transport/ws"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const secret = "e2e-secret"

type stack struct {
	server   *httptest.Server
	hub      *ws.Hub
	auth     *service.AuthService
	messages *service.MessageService
}

func newStack(t *testing.T) *stack {
	t.Helper()
	req := require.New(t)
	ctx := context.Background()

	db, err := badgerdb.Open(t.TempDir())
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	users := badgerdb.NewUserRepo(db)
	for _, id := range []domain.UserID{"alice", "bob"} {
		req.NoError(users.Create(ctx, &domain.User{ID: id, Email: string(id) + "@example.com", Username: string(id), Role: domain.RoleUser}))
	}

	auth := service.NewAuthService(users, secret, time.Hour, nil)
	attachments := service.NewAttachmentService(nil, 1024, []string{"image/png"})
	messages := service.NewMessageService(badgerdb.NewMessageRepo(db), users, auth, attachments, time.Second, zerolog.Nop())

	registry := ws.NewRegistry()
	messages.SetNotifier(ws.NewDispatcher(registry, zerolog.Nop()))
	hub := ws.NewHub(registry, messages, ws.HubConfig{Workers: 4, QueueSize: 16, SendBuffer: 16}, zerolog.Nop())
	hub.Run()

	server := httptest.NewServer(ws.ServeWS(hub, auth, true))
	t.Cleanup(func() {
		_ = hub.Shutdown(context.Background())
		server.Close()
	})

	return &stack{server: server, hub: hub, auth: auth, messages: messages}
}

func token(t *testing.T, user domain.UserID) string {
	t.Helper()
	now := time.Now()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  string(user),
		"role": domain.RoleUser,
		"iat":  now.Unix(),
		"exp":  now.Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func (s *stack) dial(t *testing.T, user domain.UserID) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "?token=" + token(t, user)
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func emit(t *testing.T, conn *websocket.Conn, eventType string, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, conn, ws.Event{Type: eventType, Payload: data}))
}

func next(t *testing.T, conn *websocket.Conn) ws.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var evt ws.Event
	require.NoError(t, wsjson.Read(ctx, conn, &evt))
	return evt
}

func decode[T any](t *testing.T, evt ws.Event) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(evt.Payload, &v))
	return v
}

func TestServeWS_RejectsBadToken(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, resp, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.server.URL, "http")+"?token=garbage", nil)

	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestScenario_JoinedReceiverGetsExactlyOnePush(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	bob := s.dial(t, "bob")

	// Given bob joined the conversation room
	emit(t, bob, ws.EventTypeJoinRoom, ws.JoinRoomPayload{RoomID: "alice:bob"})
	joined := next(t, bob)
	req.Equal(ws.EventTypeRoomJoined, joined.Type)

	// When alice sends through the service, as the HTTP handler does
	aliceID, err := s.auth.Authenticate(token(t, "alice"))
	req.NoError(err)
	res, err := s.messages.Send(context.Background(), aliceID, service.SendInput{ReceiverID: "bob", Body: "hi"})
	req.NoError(err)
	req.Equal(domain.Delivered, res.Delivery)

	// Then bob gets one receive_message carrying the persisted id
	evt := next(t, bob)
	req.Equal(ws.EventTypeReceiveMessage, evt.Type)
	payload := decode[ws.ReceiveMessagePayload](t, evt)
	req.Equal(res.Message.ID, payload.Message.ID)
	req.Equal(domain.UserID("bob"), payload.ReceiverID)

	// and nothing else before the pong
	emit(t, bob, ws.EventTypePing, nil)
	req.Equal(ws.EventTypePong, next(t, bob).Type)
}

func TestScenario_OfflineReceiverIsUnreached(t *testing.T) {
	req := require.New(t)
	s := newStack(t)

	aliceID, err := s.auth.Authenticate(token(t, "alice"))
	req.NoError(err)
	res, err := s.messages.Send(context.Background(), aliceID, service.SendInput{ReceiverID: "bob", Body: "hi"})
	req.NoError(err)
	req.Equal(domain.Unreached, res.Delivery)

	history, err := s.messages.ListConversation(context.Background(), aliceID, "bob")
	req.NoError(err)
	req.Len(history.Messages, 1)
	req.Equal(res.Message.ID, history.Messages[0].ID)
}

func TestScenario_SocketSendIsPersisted(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.dial(t, "alice")
	bob := s.dial(t, "bob")
	emit(t, bob, ws.EventTypePing, nil)
	req.Equal(ws.EventTypePong, next(t, bob).Type)

	// When alice sends over her socket
	emit(t, alice, ws.EventTypeSendMessage, ws.SendMessagePayload{ReceiverID: "bob", Message: "over the socket", RoomID: "alice:bob"})

	// Then alice gets an ack and bob the message
	ack := next(t, alice)
	req.Equal(ws.EventTypeMessageSent, ack.Type)
	sent := decode[ws.MessageSentPayload](t, ack)
	req.Equal(domain.Delivered, sent.Delivery)

	got := decode[ws.ReceiveMessagePayload](t, next(t, bob))
	req.Equal(sent.Message.ID, got.Message.ID)

	// and the message is in history
	bobID, err := s.auth.Authenticate(token(t, "bob"))
	req.NoError(err)
	history, err := s.messages.ListConversation(context.Background(), bobID, "alice")
	req.NoError(err)
	req.Len(history.Messages, 1)
	req.Equal(sent.Message.ID, history.Messages[0].ID)
}

func TestScenario_SocketErrors(t *testing.T) {
	req := require.New(t)
	s := newStack(t)
	alice := s.dial(t, "alice")

	emit(t, alice, ws.EventTypeJoinRoom, ws.JoinRoomPayload{RoomID: "bob:carol"})
	evt := next(t, alice)
	req.Equal(ws.EventTypeError, evt.Type)
	req.Equal("FORBIDDEN", decode[ws.ErrorPayload](t, evt).Code)

	emit(t, alice, ws.EventTypeSendMessage, ws.SendMessagePayload{ReceiverID: "bob", Message: " "})
	evt = next(t, alice)
	req.Equal(ws.EventTypeError, evt.Type)
	req.Equal("EMPTY_PAYLOAD", decode[ws.ErrorPayload](t, evt).Code)

	emit(t, alice, "typing", nil)
	req.Equal("UNKNOWN_EVENT", decode[ws.ErrorPayload](t, next(t, alice)).Code)
}
