package remote

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

// ChangeFeed is the Feed used by both transports. The transport pushes
// changes in with Deliver; onClose releases the relay side subscription.
type ChangeFeed struct {
	q       *queue[models.Change]
	onClose func() error

	once sync.Once
	err  error
}

func NewChangeFeed(onClose func() error) *ChangeFeed {
	return &ChangeFeed{q: newQueue[models.Change](), onClose: onClose}
}

// Deliver never blocks.
func (f *ChangeFeed) Deliver(c models.Change) {
	f.q.push(c)
}

func (f *ChangeFeed) Events() <-chan models.Change {
	return f.q.out
}

func (f *ChangeFeed) Close() error {
	f.once.Do(func() {
		f.q.close()
		if f.onClose != nil {
			f.err = f.onClose()
		}
	})
	return f.err
}

// terminate ends the feed without touching the relay, for lost connections.
func (f *ChangeFeed) terminate() {
	f.once.Do(f.q.close)
}

// ChannelOps are the transport calls behind a SignalChannel.
type ChannelOps struct {
	Track     func(ctx context.Context) error
	Broadcast func(ctx context.Context, event string, payload json.RawMessage) error
	Close     func() error
}

// SignalChannel is the Channel used by both transports.
type SignalChannel struct {
	q   *queue[Signal]
	ops ChannelOps

	once sync.Once
	err  error
}

func NewSignalChannel(ops ChannelOps) *SignalChannel {
	return &SignalChannel{q: newQueue[Signal](), ops: ops}
}

// Deliver never blocks.
func (c *SignalChannel) Deliver(s Signal) {
	c.q.push(s)
}

func (c *SignalChannel) Signals() <-chan Signal {
	return c.q.out
}

func (c *SignalChannel) Track(ctx context.Context) error {
	return c.ops.Track(ctx)
}

func (c *SignalChannel) Broadcast(ctx context.Context, event string, payload json.RawMessage) error {
	return c.ops.Broadcast(ctx, event, payload)
}

func (c *SignalChannel) Close() error {
	c.once.Do(func() {
		c.q.close()
		if c.ops.Close != nil {
			c.err = c.ops.Close()
		}
	})
	return c.err
}

func (c *SignalChannel) terminate() {
	c.once.Do(c.q.close)
}
