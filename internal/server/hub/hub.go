// Package hub implements the relay side of the chat contract: an ordered
// message store per room, a change feed, and per-room presence channels that
// carry occupancy and ephemeral broadcasts.
//
// The hub never interprets message contents. Room keys are canonicalized on
// entry so that every peer, whatever casing it used, lands in the same room.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/dmitrijs2005/cipherroom/internal/room"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/metrics"
	"github.com/dmitrijs2005/cipherroom/internal/server/repositories/messages"
	"github.com/google/uuid"
)

// DefaultMaxBackfill caps Recent when the hub is built without a limit.
const DefaultMaxBackfill = 200

// Peer is one connected client. Deliver is called with the hub lock held, so
// pushes reach every peer in the order the hub produced them. It must not
// block or call back into the hub.
type Peer interface {
	ID() string
	Deliver(p protocol.Push)
}

type member struct {
	peer    Peer
	key     string
	tracked bool
}

type roomState struct {
	subs    map[string]Peer
	members map[string]*member
}

func (r *roomState) empty() bool {
	return len(r.subs) == 0 && len(r.members) == 0
}

type Hub struct {
	repo        messages.Repository
	bus         fanout.Bus
	logger      logging.Logger
	maxBackfill int
	now         func() time.Time

	mu    sync.Mutex
	rooms map[string]*roomState
}

// New wires a hub to its store and bus and subscribes it to the bus.
func New(repo messages.Repository, bus fanout.Bus, l logging.Logger, maxBackfill int) *Hub {
	if maxBackfill <= 0 {
		maxBackfill = DefaultMaxBackfill
	}
	h := &Hub{
		repo:        repo,
		bus:         bus,
		logger:      l.With("module", "hub"),
		maxBackfill: maxBackfill,
		now:         func() time.Time { return time.Now().UTC() },
		rooms:       make(map[string]*roomState),
	}
	bus.Subscribe(h.dispatch)
	return h
}

func canonical(raw string) (string, error) {
	key := room.Canonical(raw)
	if key == "" {
		return "", fmt.Errorf("%w: room is required", common.ErrBadRequest)
	}
	return key, nil
}

// room returns the state for key, creating it. Caller holds h.mu.
func (h *Hub) room(key string) *roomState {
	r, ok := h.rooms[key]
	if !ok {
		r = &roomState{subs: make(map[string]Peer), members: make(map[string]*member)}
		h.rooms[key] = r
	}
	return r
}

// gc drops key if nothing references it anymore. Caller holds h.mu.
func (h *Hub) gc(key string) {
	if r, ok := h.rooms[key]; ok && r.empty() {
		delete(h.rooms, key)
	}
}

// Recent returns up to limit newest messages of the room, oldest first.
func (h *Hub) Recent(ctx context.Context, rawRoom string, limit int) ([]models.Message, error) {
	key, err := canonical(rawRoom)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > h.maxBackfill {
		limit = h.maxBackfill
	}
	return h.repo.Recent(ctx, key, limit)
}

// Insert stores a message with a relay-assigned id and timestamp and
// announces it on the room's change feed.
func (h *Hub) Insert(ctx context.Context, rawRoom, author, content string) (models.Message, error) {
	key, err := canonical(rawRoom)
	if err != nil {
		return models.Message{}, err
	}
	if content == "" {
		return models.Message{}, fmt.Errorf("%w: content is required", common.ErrBadRequest)
	}

	m := models.Message{
		ID:        uuid.NewString(),
		Room:      key,
		Author:    strings.TrimSpace(author),
		Content:   content,
		CreatedAt: h.now(),
	}
	if err := h.repo.Insert(ctx, &m); err != nil {
		return models.Message{}, fmt.Errorf("insert error: %w", err)
	}
	metrics.MessagesInserted.Inc()

	row := m
	h.publish(ctx, fanout.Event{
		Kind:   fanout.KindChange,
		Room:   key,
		Change: &models.Change{Kind: models.ChangeInsert, Room: key, Row: &row},
	})
	return m, nil
}

// DeleteRoom removes the whole history of the room and announces a
// room-wide delete on its change feed.
func (h *Hub) DeleteRoom(ctx context.Context, rawRoom string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	n, err := h.repo.DeleteRoom(ctx, key)
	if err != nil {
		return fmt.Errorf("delete error: %w", err)
	}
	metrics.RoomsCleared.Inc()
	h.logger.Info(ctx, "room cleared", "room", key, "rows", n)

	h.publish(ctx, fanout.Event{
		Kind:   fanout.KindChange,
		Room:   key,
		Change: &models.Change{Kind: models.ChangeDelete, Room: key},
	})
	return nil
}

// Subscribe attaches p to the room's change feed.
func (h *Hub) Subscribe(p Peer, rawRoom string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.room(key).subs[p.ID()] = p
	return nil
}

// Unsubscribe detaches p from the room's change feed.
func (h *Hub) Unsubscribe(p Peer, rawRoom string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[key]; ok {
		delete(r.subs, p.ID())
		h.gc(key)
	}
	return nil
}

// Join attaches p to the room's presence channel under key. p receives
// presence syncs and broadcasts but is not counted until it calls Track.
func (h *Hub) Join(p Peer, rawRoom, presenceKey string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	h.mu.Lock()
	r := h.room(key)
	if _, ok := r.members[p.ID()]; !ok {
		metrics.PresenceMembers.Inc()
	}
	r.members[p.ID()] = &member{peer: p, key: strings.TrimSpace(presenceKey)}
	deliver(h.presenceLocked(key))
	h.mu.Unlock()
	return nil
}

// Track marks p's presence key as online in the room.
func (h *Hub) Track(p Peer, rawRoom string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	h.mu.Lock()
	r, ok := h.rooms[key]
	var m *member
	if ok {
		m = r.members[p.ID()]
	}
	if m == nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: track before join", common.ErrBadRequest)
	}
	m.tracked = true
	deliver(h.presenceLocked(key))
	h.mu.Unlock()
	return nil
}

// Leave detaches p from the room's presence channel.
func (h *Hub) Leave(p Peer, rawRoom string) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(p.ID(), key)
	return nil
}

// Broadcast relays an ephemeral event to every other member of the room's
// presence channel, on every relay node.
func (h *Hub) Broadcast(ctx context.Context, p Peer, rawRoom, event string, payload json.RawMessage) error {
	key, err := canonical(rawRoom)
	if err != nil {
		return err
	}
	if event == "" {
		return fmt.Errorf("%w: event is required", common.ErrBadRequest)
	}
	h.mu.Lock()
	_, joined := h.room(key).members[p.ID()]
	h.gc(key)
	h.mu.Unlock()
	if !joined {
		return fmt.Errorf("%w: broadcast before join", common.ErrBadRequest)
	}

	metrics.Broadcasts.WithLabelValues(event).Inc()
	return h.bus.Publish(ctx, fanout.Event{
		Kind:    fanout.KindBroadcast,
		Room:    key,
		Origin:  p.ID(),
		Name:    event,
		Payload: payload,
	})
}

// Disconnect removes p from every feed and presence channel.
func (h *Hub) Disconnect(p Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for key, r := range h.rooms {
		delete(r.subs, p.ID())
		h.leaveLocked(p.ID(), key)
		h.gc(key)
	}
}

// Online returns the distinct tracked presence keys of the room.
func (h *Hub) Online(rawRoom string) []string {
	key := room.Canonical(rawRoom)
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[key]; !ok {
		return nil
	}
	push, _ := h.presenceLocked(key)
	return push.Keys
}

// leaveLocked removes member id from room key and syncs the remaining
// members. Caller holds h.mu.
func (h *Hub) leaveLocked(id, key string) {
	r, ok := h.rooms[key]
	if !ok {
		return
	}
	if _, ok := r.members[id]; !ok {
		return
	}
	delete(r.members, id)
	metrics.PresenceMembers.Dec()
	deliver(h.presenceLocked(key))
	h.gc(key)
}

// presenceLocked builds the presence sync for room key and returns the
// members that must receive it. Caller holds h.mu.
func (h *Hub) presenceLocked(key string) (protocol.Push, []Peer) {
	r := h.rooms[key]
	seen := make(map[string]struct{}, len(r.members))
	keys := make([]string, 0, len(r.members))
	targets := make([]Peer, 0, len(r.members))
	for _, m := range r.members {
		targets = append(targets, m.peer)
		if !m.tracked || m.key == "" {
			continue
		}
		if _, dup := seen[m.key]; dup {
			continue
		}
		seen[m.key] = struct{}{}
		keys = append(keys, m.key)
	}
	sort.Strings(keys)
	return protocol.Push{Type: protocol.PushPresence, Room: key, Keys: keys}, targets
}

func (h *Hub) publish(ctx context.Context, ev fanout.Event) {
	if err := h.bus.Publish(ctx, ev); err != nil {
		// the row is stored; subscribers will see it on their next backfill
		h.logger.Error(ctx, "bus publish failed", "room", ev.Room, "kind", ev.Kind, "error", err)
	}
}

// dispatch delivers a bus event to the local peers of its room.
func (h *Hub) dispatch(ev fanout.Event) {
	var (
		push    protocol.Push
		targets []Peer
	)

	h.mu.Lock()
	r, ok := h.rooms[ev.Room]
	if !ok {
		h.mu.Unlock()
		return
	}
	switch ev.Kind {
	case fanout.KindChange:
		push = protocol.Push{Type: protocol.PushChange, Room: ev.Room, Change: ev.Change}
		for _, p := range r.subs {
			targets = append(targets, p)
		}
	case fanout.KindBroadcast:
		push = protocol.Push{Type: protocol.PushBroadcast, Room: ev.Room, Event: ev.Name, Payload: ev.Payload}
		for id, m := range r.members {
			if id == ev.Origin {
				continue
			}
			targets = append(targets, m.peer)
		}
	}
	deliver(push, targets)
	h.mu.Unlock()
}

// deliver sends push to targets. Caller holds h.mu.
func deliver(push protocol.Push, targets []Peer) {
	for _, p := range targets {
		p.Deliver(push)
	}
}
