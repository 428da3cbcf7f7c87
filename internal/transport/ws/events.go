package ws

import (
	"encoding/json"
	"time"

	"github.com/vedran77/duet/internal/domain"
)

// Event types - Client → Server
const (
	EventTypeJoinRoom    = "join_room"
	EventTypeSendMessage = "send_message"
	EventTypePing        = "ping"
)

// Event types - Server → Client
const (
	EventTypeReceiveMessage = "receive_message"
	EventTypeMessageSent    = "message_sent"
	EventTypeRoomJoined     = "room_joined"
	EventTypePong           = "pong"
	EventTypeError          = "error"
)

// Event is the base envelope for all WebSocket messages.
type Event struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"ts,omitempty"`
}

// --- Client → Server payloads ---

type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

type SendMessagePayload struct {
	ReceiverID domain.UserID `json:"receiverId"`
	Message    string        `json:"message"`
	RoomID     string        `json:"roomId,omitempty"`
}

// --- Server → Client payloads ---

type ReceiveMessagePayload struct {
	Message    *domain.Message `json:"message"`
	ReceiverID domain.UserID   `json:"receiverId"`
}

type MessageSentPayload struct {
	Message  *domain.Message `json:"message"`
	Delivery domain.Delivery `json:"delivery"`
}

type RoomJoinedPayload struct {
	RoomID string `json:"roomId"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewEvent creates a server→client event with the current timestamp.
func NewEvent(eventType string, payload any) (*Event, error) {
	evt := &Event{
		Type:      eventType,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		evt.Payload = data
	}
	return evt, nil
}

func encodeEvent(eventType string, payload any) ([]byte, error) {
	evt, err := NewEvent(eventType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt)
}
