// Package models holds the data types shared by the chat client, the wire
// protocol and the relay.
package models

import "time"

// Message is one chat line. On the wire Content is an encrypted envelope (or
// legacy plaintext); inside the client it is always the decoded text.
type Message struct {
	ID        string    `json:"id"`
	Room      string    `json:"room"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChangeKind tags a row-level change notification.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "INSERT"
	// ChangeDelete is room-wide: it carries no row and invalidates the whole
	// local history of the room.
	ChangeDelete ChangeKind = "DELETE"
)

// Change is a row-level change on the message collection for one room.
type Change struct {
	Kind ChangeKind `json:"kind"`
	Room string     `json:"room"`
	Row  *Message   `json:"row,omitempty"`
}
