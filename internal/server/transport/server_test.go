package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/storage"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	st, err := storage.Open(context.Background(), fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)

	h := hub.New(st.Messages(), fanout.NewLocalBus(), logging.Discard(), 0)
	s := NewServer(h, logging.Discard())
	ts := httptest.NewServer(s.Router(true))
	t.Cleanup(func() {
		s.CloseAll()
		ts.Close()
		_ = st.Close()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func send(t *testing.T, c *websocket.Conn, req protocol.Request) {
	t.Helper()
	require.NoError(t, c.WriteJSON(req))
}

func read(t *testing.T, c *websocket.Conn) protocol.ServerMsg {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	var m protocol.ServerMsg
	require.NoError(t, c.ReadJSON(&m))
	return m
}

// readReply skips pushes until the reply with ref arrives.
func readReply(t *testing.T, c *websocket.Conn, ref string) *protocol.Reply {
	t.Helper()
	for {
		m := read(t, c)
		if m.Reply != nil && m.Reply.Ref == ref {
			return m.Reply
		}
	}
}

func readPush(t *testing.T, c *websocket.Conn, typ protocol.PushType) *protocol.Push {
	t.Helper()
	for {
		m := read(t, c)
		if m.Push != nil && m.Push.Type == typ {
			return m.Push
		}
	}
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cipherroom_relay_connections")
}

func TestInsert_ReplyAndChangePush(t *testing.T) {
	_, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	send(t, b, protocol.Request{Ref: "1", Op: protocol.OpSubscribe, Room: "lobby"})
	require.Empty(t, readReply(t, b, "1").Error)

	send(t, a, protocol.Request{Ref: "7", Op: protocol.OpInsert, Room: "Lobby", Author: "alice", Content: "ct"})
	reply := readReply(t, a, "7")
	require.Empty(t, reply.Error)
	require.NotNil(t, reply.Row)
	assert.Equal(t, "lobby", reply.Row.Room)

	push := readPush(t, b, protocol.PushChange)
	assert.Equal(t, models.ChangeInsert, push.Change.Kind)
	assert.Equal(t, reply.Row.ID, push.Change.Row.ID)

	send(t, a, protocol.Request{Ref: "8", Op: protocol.OpRecent, Room: "lobby", Limit: 200})
	recent := readReply(t, a, "8")
	require.Len(t, recent.Rows, 1)
	assert.Equal(t, "ct", recent.Rows[0].Content)
}

func TestBroadcastAndPresence(t *testing.T) {
	_, ts := newTestServer(t)
	a := dial(t, ts)
	b := dial(t, ts)

	for i, c := range []*websocket.Conn{a, b} {
		key := fmt.Sprintf("anon-%d", i)
		send(t, c, protocol.Request{Ref: "j", Op: protocol.OpJoin, Room: "lobby", Key: key})
		require.Empty(t, readReply(t, c, "j").Error)
		send(t, c, protocol.Request{Ref: "t", Op: protocol.OpTrack, Room: "lobby"})
		require.Empty(t, readReply(t, c, "t").Error)
	}

	var keys []string
	for len(keys) < 2 {
		keys = readPush(t, a, protocol.PushPresence).Keys
	}
	assert.Equal(t, []string{"anon-0", "anon-1"}, keys)

	payload, _ := json.Marshal(models.RoomClearedPayload{By: "alice"})
	send(t, a, protocol.Request{Ref: "b", Op: protocol.OpBroadcast, Room: "lobby", Event: models.BroadcastRoomCleared, Payload: payload})
	require.Empty(t, readReply(t, a, "b").Error)

	push := readPush(t, b, protocol.PushBroadcast)
	assert.Equal(t, models.BroadcastRoomCleared, push.Event)
	assert.JSONEq(t, `{"by":"alice"}`, string(push.Payload))
}

func TestUnsupportedOp(t *testing.T) {
	_, ts := newTestServer(t)
	c := dial(t, ts)

	send(t, c, protocol.Request{Ref: "x", Op: "explode", Room: "lobby"})
	reply := readReply(t, c, "x")
	assert.Contains(t, reply.Error, "bad request")
}

func TestCloseAll_DropsConnections(t *testing.T) {
	s, ts := newTestServer(t)
	c := dial(t, ts)

	send(t, c, protocol.Request{Ref: "1", Op: protocol.OpSubscribe, Room: "lobby"})
	readReply(t, c, "1")
	assert.Equal(t, 1, s.Open())

	s.CloseAll()
	assert.Equal(t, 0, s.Open())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)
}
