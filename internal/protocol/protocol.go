// Package protocol defines the JSON frames exchanged between chat clients and
// the relay over a websocket.
//
// Every client frame is a Request correlated by Ref. The relay answers each
// request with exactly one Reply carrying the same Ref, and additionally
// sends unsolicited Push frames for change feeds, presence and broadcasts.
package protocol

import (
	"encoding/json"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

const (
	// MaxRequestBytes is the largest client frame the relay reads. Longer
	// frames close the connection.
	MaxRequestBytes = 64 << 10
	// MaxTextBytes bounds the plaintext of one message so that its envelope
	// still fits in an insert request.
	MaxTextBytes = 16 << 10
)

// Op names a client request.
type Op string

const (
	OpRecent      Op = "recent"
	OpInsert      Op = "insert"
	OpDeleteRoom  Op = "delete_room"
	OpSubscribe   Op = "subscribe"
	OpUnsubscribe Op = "unsubscribe"
	OpJoin        Op = "join"
	OpTrack       Op = "track"
	OpBroadcast   Op = "broadcast"
	OpLeave       Op = "leave"
)

// Request is a client -> relay frame.
type Request struct {
	Ref     string          `json:"ref"`
	Op      Op              `json:"op"`
	Room    string          `json:"room"`
	Limit   int             `json:"limit,omitempty"`
	Author  string          `json:"author,omitempty"`
	Content string          `json:"content,omitempty"`
	Key     string          `json:"key,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Reply answers one Request. A non-empty Error means the request failed.
type Reply struct {
	Ref   string           `json:"ref"`
	Error string           `json:"error,omitempty"`
	Rows  []models.Message `json:"rows,omitempty"`
	Row   *models.Message  `json:"row,omitempty"`
}

// PushType tags an unsolicited relay -> client frame.
type PushType string

const (
	PushChange    PushType = "change"
	PushPresence  PushType = "presence"
	PushBroadcast PushType = "broadcast"
)

// Push is an unsolicited relay -> client frame scoped to one room.
type Push struct {
	Type    PushType        `json:"type"`
	Room    string          `json:"room"`
	Change  *models.Change  `json:"change,omitempty"`
	Keys    []string        `json:"keys,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ServerMsg is the relay -> client frame. Exactly one field is set.
type ServerMsg struct {
	Reply *Reply `json:"reply,omitempty"`
	Push  *Push  `json:"push,omitempty"`
}
