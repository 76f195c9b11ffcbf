package remote

import (
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/protocol"
)

type route struct {
	room    string
	feed    *ChangeFeed
	channel *SignalChannel
}

// Router fans pushes arriving on one relay connection out to the feeds and
// channels opened on it.
type Router struct {
	mu     sync.Mutex
	next   uint64
	routes map[uint64]route
}

func NewRouter() *Router {
	return &Router{routes: make(map[uint64]route)}
}

// AddFeed routes change pushes of room to f until remove is called.
func (r *Router) AddFeed(room string, f *ChangeFeed) (remove func()) {
	return r.add(route{room: room, feed: f})
}

// AddChannel routes presence and broadcast pushes of room to c until remove
// is called.
func (r *Router) AddChannel(room string, c *SignalChannel) (remove func()) {
	return r.add(route{room: room, channel: c})
}

func (r *Router) add(rt route) func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	id := r.next
	r.routes[id] = rt
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.routes, id)
	}
}

// Route delivers p to every matching handle. It never blocks.
func (r *Router) Route(p protocol.Push) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.Type == protocol.PushChange {
		if p.Change == nil {
			return
		}
		for _, rt := range r.routes {
			if rt.feed != nil && rt.room == p.Room {
				rt.feed.Deliver(*p.Change)
			}
		}
		return
	}

	s, ok := SignalFromPush(p)
	if !ok {
		return
	}
	for _, rt := range r.routes {
		if rt.channel != nil && rt.room == p.Room {
			rt.channel.Deliver(s)
		}
	}
}

// CloseAll ends every handle without calling the relay. Used when the
// connection is gone.
func (r *Router) CloseAll() {
	r.mu.Lock()
	routes := r.routes
	r.routes = make(map[uint64]route)
	r.mu.Unlock()

	for _, rt := range routes {
		if rt.feed != nil {
			rt.feed.terminate()
		}
		if rt.channel != nil {
			rt.channel.terminate()
		}
	}
}

// Len reports the number of open handles.
func (r *Router) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.routes)
}
