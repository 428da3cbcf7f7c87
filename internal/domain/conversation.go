package domain

import (
	"strings"
)

// Delivery is the terminal outcome of pushing a persisted message.
type Delivery string

const (
	Delivered Delivery = "delivered"
	Unreached Delivery = "unreached"
)

// DeliveryReport summarises one dispatch.
type DeliveryReport struct {
	Outcome Delivery `json:"outcome"`
	Targets int      `json:"targets"`
	Pushed  int      `json:"pushed"`
	Failed  int      `json:"failed"`
}

// ConversationRoom returns the room id of the conversation between a and b.
// The pair is unordered: ConversationRoom(a, b) == ConversationRoom(b, a).
// The id is only unambiguous for ids that pass UserID.Valid.
func ConversationRoom(a, b UserID) string {
	if a > b {
		a, b = b, a
	}
	return string(a) + ":" + string(b)
}

// RoomParticipants splits a conversation room id. ok is false for ids that
// are not of the form "a:b".
func RoomParticipants(roomID string) (a, b UserID, ok bool) {
	left, right, found := strings.Cut(roomID, ":")
	if !found || left == "" || right == "" || strings.Contains(right, ":") {
		return "", "", false
	}
	return UserID(left), UserID(right), true
}

// CanJoinRoom reports whether user may subscribe to roomID. Conversation
// rooms are open only to their two participants.
func CanJoinRoom(user UserID, roomID string) bool {
	a, b, ok := RoomParticipants(roomID)
	if !ok {
		return false
	}
	return user == a || user == b
}
