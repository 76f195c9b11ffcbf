// Package remote defines what the chat engine needs from the relay: an
// ordered message query, insert and room-wide delete, a change feed per room
// and a presence channel per room.
//
// Two implementations exist: wsclient talks to a relay over a websocket and
// Loopback calls an in-process hub directly.
package remote

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
)

type Remote interface {
	// Recent returns up to limit of the newest messages, oldest first.
	Recent(ctx context.Context, room string, limit int) ([]models.Message, error)
	// Insert stores a message. The relay assigns ID and CreatedAt.
	Insert(ctx context.Context, room, author, content string) (models.Message, error)
	// DeleteRoom removes every message of the room.
	DeleteRoom(ctx context.Context, room string) error
	// Changes opens the room's change feed.
	Changes(ctx context.Context, room string) (Feed, error)
	// Presence attaches to the room's presence channel under key.
	Presence(ctx context.Context, room, key string) (Channel, error)
}

// Feed yields insert and delete notifications for one room in relay order.
// Events is closed after Close or when the connection is lost.
type Feed interface {
	Events() <-chan models.Change
	Close() error
}

// Channel is a presence channel: occupancy plus small ephemeral broadcasts.
// Signals is closed after Close or when the connection is lost.
type Channel interface {
	Signals() <-chan Signal
	// Track announces the caller as present.
	Track(ctx context.Context) error
	// Broadcast sends an event to every other member of the channel.
	Broadcast(ctx context.Context, event string, payload json.RawMessage) error
	Close() error
}

type SignalKind int

const (
	// SignalSubscribed acknowledges the channel subscription. Members
	// announce themselves with Track once it arrives.
	SignalSubscribed SignalKind = iota
	// SignalPresence carries the tracked keys currently on the channel.
	SignalPresence
	// SignalBroadcast carries an event from another member.
	SignalBroadcast
)

func (k SignalKind) String() string {
	switch k {
	case SignalSubscribed:
		return "subscribed"
	case SignalPresence:
		return "presence"
	case SignalBroadcast:
		return "broadcast"
	default:
		return "unknown"
	}
}

type Signal struct {
	Kind    SignalKind
	Keys    []string
	Event   string
	Payload json.RawMessage
}

// SignalFromPush converts a presence or broadcast push. Change pushes are
// not signals.
func SignalFromPush(p protocol.Push) (Signal, bool) {
	switch p.Type {
	case protocol.PushPresence:
		return Signal{Kind: SignalPresence, Keys: p.Keys}, true
	case protocol.PushBroadcast:
		return Signal{Kind: SignalBroadcast, Event: p.Event, Payload: p.Payload}, true
	default:
		return Signal{}, false
	}
}
