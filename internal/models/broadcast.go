package models

// Broadcast event names used on the presence channel.
const (
	BroadcastTyping      = "typing"
	BroadcastRoomCleared = "room_cleared"
)

// TypingPayload is the body of a typing broadcast.
type TypingPayload struct {
	Name   string `json:"name"`
	Typing bool   `json:"typing"`
}

// RoomClearedPayload is the body of a room_cleared broadcast. By is absent
// when sent by older clients.
type RoomClearedPayload struct {
	By string `json:"by,omitempty"`
}
