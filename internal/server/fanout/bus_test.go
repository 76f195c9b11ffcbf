package fanout

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalBus_DeliversToAllHandlersInOrder(t *testing.T) {
	b := NewLocalBus()
	var got1, got2 []string
	b.Subscribe(func(ev Event) { got1 = append(got1, ev.Room) })
	b.Subscribe(func(ev Event) { got2 = append(got2, ev.Room) })

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, Event{Kind: KindBroadcast, Room: "a"}))
	require.NoError(t, b.Publish(ctx, Event{Kind: KindBroadcast, Room: "b"}))

	assert.Equal(t, []string{"a", "b"}, got1)
	assert.Equal(t, []string{"a", "b"}, got2)
	assert.NoError(t, b.Close())
}

func TestDecodeEvent(t *testing.T) {
	change, err := json.Marshal(Event{
		Kind:   KindChange,
		Room:   "lobby",
		Change: &models.Change{Kind: models.ChangeDelete, Room: "lobby"},
	})
	require.NoError(t, err)

	ev, err := decodeEvent(change)
	require.NoError(t, err)
	assert.Equal(t, models.ChangeDelete, ev.Change.Kind)

	bad := []string{
		`not json`,
		`{"kind":"change","room":"lobby"}`,
		`{"kind":"broadcast"}`,
		`{"kind":"mystery","room":"lobby"}`,
	}
	for _, in := range bad {
		_, err := decodeEvent([]byte(in))
		assert.Error(t, err, in)
	}

	ev, err = decodeEvent([]byte(`{"kind":"broadcast","room":"lobby","origin":"p1","name":"typing","payload":{"name":"a","typing":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "p1", ev.Origin)
	assert.JSONEq(t, `{"name":"a","typing":true}`, string(ev.Payload))
}
