package remote

import (
	"context"
	"encoding/json"

	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/google/uuid"
)

// Loopback is a Remote over an in-process hub. It backs the client's local
// mode and engine tests.
type Loopback struct {
	hub *hub.Hub
}

func NewLoopback(h *hub.Hub) *Loopback {
	return &Loopback{hub: h}
}

type loopPeer struct {
	id      string
	deliver func(protocol.Push)
}

func newLoopPeer() *loopPeer {
	return &loopPeer{id: uuid.NewString()}
}

func (p *loopPeer) ID() string { return p.id }

func (p *loopPeer) Deliver(push protocol.Push) {
	p.deliver(push)
}

func (l *Loopback) Recent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	return l.hub.Recent(ctx, room, limit)
}

func (l *Loopback) Insert(ctx context.Context, room, author, content string) (models.Message, error) {
	return l.hub.Insert(ctx, room, author, content)
}

func (l *Loopback) DeleteRoom(ctx context.Context, room string) error {
	return l.hub.DeleteRoom(ctx, room)
}

func (l *Loopback) Changes(ctx context.Context, room string) (Feed, error) {
	p := newLoopPeer()
	f := NewChangeFeed(func() error { return l.hub.Unsubscribe(p, room) })
	p.deliver = func(push protocol.Push) {
		if push.Type == protocol.PushChange && push.Change != nil {
			f.Deliver(*push.Change)
		}
	}
	if err := l.hub.Subscribe(p, room); err != nil {
		f.terminate()
		return nil, err
	}
	return f, nil
}

func (l *Loopback) Presence(ctx context.Context, room, key string) (Channel, error) {
	p := newLoopPeer()
	c := NewSignalChannel(ChannelOps{
		Track: func(ctx context.Context) error {
			return l.hub.Track(p, room)
		},
		Broadcast: func(ctx context.Context, event string, payload json.RawMessage) error {
			return l.hub.Broadcast(ctx, p, room, event, payload)
		},
		Close: func() error {
			return l.hub.Leave(p, room)
		},
	})
	p.deliver = func(push protocol.Push) {
		if s, ok := SignalFromPush(push); ok {
			c.Deliver(s)
		}
	}
	if err := l.hub.Join(p, room, key); err != nil {
		c.terminate()
		return nil, err
	}
	c.Deliver(Signal{Kind: SignalSubscribed})
	return c, nil
}
