// Package wsclient is the remote.Remote that talks to a relay over a single
// websocket connection.
package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 3 * time.Second
	pingPeriod = 20 * time.Second
	pongWait   = 25 * time.Second
	readLimit  = 1 << 20

	// DefaultRequestTimeout bounds a request whose context has no deadline.
	DefaultRequestTimeout = 10 * time.Second
)

type Client struct {
	conn    *websocket.Conn
	logger  logging.Logger
	router  *remote.Router
	timeout time.Duration

	writeMu sync.Mutex
	ref     atomic.Uint64

	pendMu  sync.Mutex
	pending map[string]chan *protocol.Reply

	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the relay websocket at url.
func Dial(ctx context.Context, url string, l logging.Logger, timeout time.Duration) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}

	c := &Client{
		conn:    conn,
		logger:  l.With("module", "wsclient"),
		router:  remote.NewRouter(),
		timeout: timeout,
		pending: make(map[string]chan *protocol.Reply),
		done:    make(chan struct{}),
	}

	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	// the relay pings too; answering resets our deadline as well
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	<-c.done
	return err
}

func (c *Client) readLoop() {
	defer c.shutdown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn(context.Background(), "relay connection lost", "error", err)
			}
			return
		}

		var m protocol.ServerMsg
		if err := json.Unmarshal(data, &m); err != nil {
			c.logger.Warn(context.Background(), "malformed frame from relay", "error", err)
			continue
		}

		switch {
		case m.Reply != nil:
			c.resolve(m.Reply)
		case m.Push != nil:
			c.router.Route(*m.Push)
		}
	}
}

func (c *Client) pingLoop() {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Warn(context.Background(), "ping failed", "error", err)
				_ = c.conn.Close()
				return
			}
		}
	}
}

// shutdown fails every pending request and ends every feed and channel.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() { _ = c.conn.Close() })

	c.pendMu.Lock()
	pending := c.pending
	c.pending = nil
	c.pendMu.Unlock()
	for _, ch := range pending {
		close(ch)
	}

	c.router.CloseAll()
	close(c.done)
}

func (c *Client) resolve(r *protocol.Reply) {
	c.pendMu.Lock()
	ch, ok := c.pending[r.Ref]
	delete(c.pending, r.Ref)
	c.pendMu.Unlock()
	if !ok {
		c.logger.Debug(context.Background(), "reply without request", "ref", r.Ref)
		return
	}
	ch <- r
}

func (c *Client) call(ctx context.Context, req protocol.Request) (*protocol.Reply, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req.Ref = strconv.FormatUint(c.ref.Add(1), 10)
	ch := make(chan *protocol.Reply, 1)

	c.pendMu.Lock()
	if c.pending == nil {
		c.pendMu.Unlock()
		return nil, common.ErrClosed
	}
	c.pending[req.Ref] = ch
	c.pendMu.Unlock()

	if err := c.write(req); err != nil {
		c.forget(req.Ref)
		return nil, err
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return nil, common.ErrClosed
		}
		if r.Error != "" {
			return nil, mapError(r.Error)
		}
		return r, nil
	case <-ctx.Done():
		c.forget(req.Ref)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s timed out", common.ErrUnavailable, req.Op)
		}
		return nil, ctx.Err()
	}
}

func (c *Client) write(req protocol.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode error: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("%w: %v", common.ErrClosed, err)
	}
	return nil
}

func (c *Client) forget(ref string) {
	c.pendMu.Lock()
	defer c.pendMu.Unlock()
	if c.pending != nil {
		delete(c.pending, ref)
	}
}

// relayError keeps the relay's message and matches the sentinel it maps to.
type relayError struct {
	msg      string
	sentinel error
}

func (e *relayError) Error() string { return e.msg }
func (e *relayError) Unwrap() error { return e.sentinel }

func mapError(msg string) error {
	if strings.HasPrefix(msg, common.ErrBadRequest.Error()) {
		return &relayError{msg: msg, sentinel: common.ErrBadRequest}
	}
	return &relayError{msg: msg, sentinel: common.ErrUnavailable}
}

func (c *Client) Recent(ctx context.Context, room string, limit int) ([]models.Message, error) {
	r, err := c.call(ctx, protocol.Request{Op: protocol.OpRecent, Room: room, Limit: limit})
	if err != nil {
		return nil, err
	}
	return r.Rows, nil
}

func (c *Client) Insert(ctx context.Context, room, author, content string) (models.Message, error) {
	r, err := c.call(ctx, protocol.Request{Op: protocol.OpInsert, Room: room, Author: author, Content: content})
	if err != nil {
		return models.Message{}, err
	}
	if r.Row == nil {
		return models.Message{}, fmt.Errorf("%w: insert reply without row", common.ErrUnavailable)
	}
	return *r.Row, nil
}

func (c *Client) DeleteRoom(ctx context.Context, room string) error {
	_, err := c.call(ctx, protocol.Request{Op: protocol.OpDeleteRoom, Room: room})
	return err
}

func (c *Client) Changes(ctx context.Context, room string) (remote.Feed, error) {
	var remove func()
	f := remote.NewChangeFeed(func() error {
		remove()
		return c.release(protocol.Request{Op: protocol.OpUnsubscribe, Room: room})
	})
	// routed before the request so no push after the reply is missed
	remove = c.router.AddFeed(room, f)

	if _, err := c.call(ctx, protocol.Request{Op: protocol.OpSubscribe, Room: room}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("subscribe error: %w", err)
	}
	return f, nil
}

func (c *Client) Presence(ctx context.Context, room, key string) (remote.Channel, error) {
	var remove func()
	ch := remote.NewSignalChannel(remote.ChannelOps{
		Track: func(ctx context.Context) error {
			_, err := c.call(ctx, protocol.Request{Op: protocol.OpTrack, Room: room})
			return err
		},
		Broadcast: func(ctx context.Context, event string, payload json.RawMessage) error {
			_, err := c.call(ctx, protocol.Request{Op: protocol.OpBroadcast, Room: room, Event: event, Payload: payload})
			return err
		},
		Close: func() error {
			remove()
			return c.release(protocol.Request{Op: protocol.OpLeave, Room: room})
		},
	})
	remove = c.router.AddChannel(room, ch)

	if _, err := c.call(ctx, protocol.Request{Op: protocol.OpJoin, Room: room, Key: key}); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("join error: %w", err)
	}
	ch.Deliver(remote.Signal{Kind: remote.SignalSubscribed})
	return ch, nil
}

// release undoes a subscription. A closed connection has nothing to undo.
func (c *Client) release(req protocol.Request) error {
	select {
	case <-c.done:
		return nil
	default:
	}
	_, err := c.call(context.Background(), req)
	if errors.Is(err, common.ErrClosed) {
		return nil
	}
	return err
}
