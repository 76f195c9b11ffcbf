package wsclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/storage"
	"github.com/dmitrijs2005/cipherroom/internal/server/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type relay struct {
	hub *hub.Hub
	srv *transport.Server
	ts  *httptest.Server
	url string
}

func startRelay(t *testing.T) *relay {
	t.Helper()
	st, err := storage.Open(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	h := hub.New(st.Messages(), fanout.NewLocalBus(), logging.Discard(), 0)
	srv := transport.NewServer(h, logging.Discard())
	ts := httptest.NewServer(srv.Router(false))
	t.Cleanup(func() {
		srv.CloseAll()
		ts.Close()
		_ = st.Close()
	})
	return &relay{hub: h, srv: srv, ts: ts, url: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"}
}

func dial(t *testing.T, r *relay) *Client {
	t.Helper()
	c, err := Dial(context.Background(), r.url, logging.Discard(), time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(3 * time.Second):
		t.Fatal("timed out")
	}
	var zero T
	return zero
}

func TestDial_Unreachable(t *testing.T) {
	_, err := Dial(context.Background(), "ws://127.0.0.1:1/ws", logging.Discard(), time.Second)
	assert.True(t, errors.Is(err, common.ErrUnavailable))
}

func TestInsertRecentAndFeed(t *testing.T) {
	r := startRelay(t)
	a := dial(t, r)
	b := dial(t, r)
	ctx := context.Background()

	feed, err := b.Changes(ctx, "lobby")
	require.NoError(t, err)

	m, err := a.Insert(ctx, "lobby", "alice", "ct-1")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	c := next(t, feed.Events())
	assert.Equal(t, models.ChangeInsert, c.Kind)
	assert.Equal(t, m.ID, c.Row.ID)

	rows, err := b.Recent(ctx, "lobby", 200)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "ct-1", rows[0].Content)

	require.NoError(t, a.DeleteRoom(ctx, "lobby"))
	c = next(t, feed.Events())
	assert.Equal(t, models.ChangeDelete, c.Kind)

	require.NoError(t, feed.Close())
	_, err = a.Insert(ctx, "lobby", "alice", "ct-2")
	require.NoError(t, err)
	select {
	case _, ok := <-feed.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed not closed")
	}
}

func TestPresenceAndBroadcast(t *testing.T) {
	r := startRelay(t)
	a := dial(t, r)
	b := dial(t, r)
	ctx := context.Background()

	ca, err := a.Presence(ctx, "lobby", "alice")
	require.NoError(t, err)
	cb, err := b.Presence(ctx, "lobby", "bob")
	require.NoError(t, err)

	for {
		if next(t, ca.Signals()).Kind == remote.SignalSubscribed {
			break
		}
	}
	require.NoError(t, ca.Track(ctx))
	require.NoError(t, cb.Track(ctx))

	var keys []string
	for len(keys) < 2 {
		s := next(t, ca.Signals())
		if s.Kind == remote.SignalPresence {
			keys = s.Keys
		}
	}
	assert.Equal(t, []string{"alice", "bob"}, keys)

	require.NoError(t, cb.Broadcast(ctx, models.BroadcastTyping, json.RawMessage(`{"name":"bob","typing":true}`)))
	for {
		s := next(t, ca.Signals())
		if s.Kind == remote.SignalBroadcast {
			assert.Equal(t, models.BroadcastTyping, s.Event)
			assert.JSONEq(t, `{"name":"bob","typing":true}`, string(s.Payload))
			break
		}
	}

	require.NoError(t, cb.Close())
	assert.Eventually(t, func() bool {
		return len(r.hub.Online("lobby")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayErrorMapsToSentinel(t *testing.T) {
	r := startRelay(t)
	c := dial(t, r)

	_, err := c.Insert(context.Background(), "  ", "alice", "ct")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrBadRequest))
	assert.Contains(t, err.Error(), "room is required")

	_, err = c.Changes(context.Background(), "")
	assert.True(t, errors.Is(err, common.ErrBadRequest))
}

func TestMapError(t *testing.T) {
	assert.True(t, errors.Is(mapError("bad request: nope"), common.ErrBadRequest))
	assert.True(t, errors.Is(mapError("insert error: db is down"), common.ErrUnavailable))
	assert.Equal(t, "insert error: db is down", mapError("insert error: db is down").Error())
}

func TestConnectionLoss_EndsFeedsAndRequests(t *testing.T) {
	r := startRelay(t)
	c := dial(t, r)
	ctx := context.Background()

	feed, err := c.Changes(ctx, "lobby")
	require.NoError(t, err)

	r.srv.CloseAll()

	select {
	case <-c.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("client did not notice the closed connection")
	}
	select {
	case _, ok := <-feed.Events():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("feed not closed")
	}

	_, err = c.Recent(ctx, "lobby", 10)
	assert.True(t, errors.Is(err, common.ErrClosed))
	assert.NoError(t, feed.Close())
}
