package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/metrics"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 3 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = 20 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 25 * time.Second

	readLimit = protocol.MaxRequestBytes

	// Frames queued for a peer before it is treated as a slow consumer.
	sendQueue = 256

	requestTimeout = 10 * time.Second
)

// Conn is one websocket session. It is the hub.Peer of that client.
type Conn struct {
	sync.Mutex

	id     string
	ws     *websocket.Conn
	hub    *hub.Hub
	logger logging.Logger

	ctx    context.Context
	cancel context.CancelFunc

	dataChan chan *protocol.ServerMsg
	closing  bool
	onClose  func(*Conn)
}

func newConn(parent context.Context, ws *websocket.Conn, h *hub.Hub, l logging.Logger, onClose func(*Conn)) *Conn {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(parent)
	return &Conn{
		id:       id,
		ws:       ws,
		hub:      h,
		logger:   l.With("conn", id),
		ctx:      ctx,
		cancel:   cancel,
		dataChan: make(chan *protocol.ServerMsg, sendQueue),
		onClose:  onClose,
	}
}

func (c *Conn) ID() string {
	return c.id
}

// Deliver queues a push without blocking. A peer whose queue is full is
// disconnected.
func (c *Conn) Deliver(p protocol.Push) {
	push := p
	if !c.enqueue(&protocol.ServerMsg{Push: &push}) {
		metrics.SlowConsumers.Inc()
		c.logger.Warn(c.ctx, "slow consumer, closing connection")
		go c.close()
	}
}

// enqueue reports false only when the queue is full.
func (c *Conn) enqueue(m *protocol.ServerMsg) bool {
	c.Lock()
	defer c.Unlock()
	if c.closing {
		return true
	}
	select {
	case c.dataChan <- m:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.Lock()
	if c.closing {
		c.Unlock()
		return
	}
	c.closing = true
	c.cancel()
	// sendLoop drains, writes the close frame and closes the socket
	close(c.dataChan)
	c.Unlock()

	c.hub.Disconnect(c)
	if c.onClose != nil {
		c.onClose(c)
	}
}

func (c *Conn) serve() {
	go c.sendLoop()
	c.recvLoop()
}

func (c *Conn) recvLoop() {
	defer c.close()

	c.ws.SetReadLimit(readLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn(c.ctx, "read error", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			c.logger.Warn(c.ctx, "unexpected message type", "type", msgType)
			return
		}

		var req protocol.Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.logger.Warn(c.ctx, "malformed request", "error", err)
			c.enqueue(&protocol.ServerMsg{Reply: &protocol.Reply{
				Error: fmt.Sprintf("%v: malformed request", common.ErrBadRequest),
			}})
			return
		}

		reply := c.handle(&req)
		if !c.enqueue(&protocol.ServerMsg{Reply: reply}) {
			metrics.SlowConsumers.Inc()
			return
		}
	}
}

func (c *Conn) handle(req *protocol.Request) *protocol.Reply {
	ctx, cancel := context.WithTimeout(c.ctx, requestTimeout)
	defer cancel()

	reply := &protocol.Reply{Ref: req.Ref}
	var err error

	switch req.Op {
	case protocol.OpRecent:
		reply.Rows, err = c.hub.Recent(ctx, req.Room, req.Limit)
	case protocol.OpInsert:
		row, ierr := c.hub.Insert(ctx, req.Room, req.Author, req.Content)
		if ierr == nil {
			reply.Row = &row
		}
		err = ierr
	case protocol.OpDeleteRoom:
		err = c.hub.DeleteRoom(ctx, req.Room)
	case protocol.OpSubscribe:
		err = c.hub.Subscribe(c, req.Room)
	case protocol.OpUnsubscribe:
		err = c.hub.Unsubscribe(c, req.Room)
	case protocol.OpJoin:
		err = c.hub.Join(c, req.Room, req.Key)
	case protocol.OpTrack:
		err = c.hub.Track(c, req.Room)
	case protocol.OpBroadcast:
		err = c.hub.Broadcast(ctx, c, req.Room, req.Event, req.Payload)
	case protocol.OpLeave:
		err = c.hub.Leave(c, req.Room)
	default:
		err = fmt.Errorf("%w: unsupported op %q", common.ErrBadRequest, req.Op)
	}

	if err != nil {
		c.logger.Debug(ctx, "request failed", "op", req.Op, "room", req.Room, "error", err)
		reply.Error = err.Error()
		reply.Rows = nil
	}
	return reply
}

func (c *Conn) sendLoop() {
	pingTicker := time.NewTicker(pingPeriod)
	defer func() {
		pingTicker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case m, ok := <-c.dataChan:
			if !ok {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.ws.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			out, err := json.Marshal(m)
			if err != nil {
				c.logger.Error(c.ctx, "marshal error", "error", err)
				continue
			}
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, out); err != nil {
				c.logger.Warn(c.ctx, "write error", "error", err)
				go c.close()
				return
			}
		case <-pingTicker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn(c.ctx, "ping error", "error", err)
				go c.close()
				return
			}
		}
	}
}
