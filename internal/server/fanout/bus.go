// Package fanout distributes relay events (row changes and broadcasts) to
// every relay node that may hold subscribers for the room.
package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

type Kind string

const (
	KindChange    Kind = "change"
	KindBroadcast Kind = "broadcast"
)

// Event is what travels over the bus. Origin is the peer that sent a
// broadcast; it is skipped on delivery.
type Event struct {
	Kind    Kind            `json:"kind"`
	Room    string          `json:"room"`
	Origin  string          `json:"origin,omitempty"`
	Change  *models.Change  `json:"change,omitempty"`
	Name    string          `json:"name,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Handler consumes events. It must not block for long.
type Handler func(Event)

type Bus interface {
	Publish(ctx context.Context, ev Event) error
	Subscribe(h Handler)
	Close() error
}

// LocalBus delivers synchronously inside Publish. It is the single-node bus.
type LocalBus struct {
	mu       sync.RWMutex
	handlers []Handler
}

func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

func (b *LocalBus) Publish(ctx context.Context, ev Event) error {
	b.mu.RLock()
	hs := b.handlers
	b.mu.RUnlock()
	for _, h := range hs {
		h(ev)
	}
	return nil
}

func (b *LocalBus) Subscribe(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
}

func (b *LocalBus) Close() error {
	return nil
}
