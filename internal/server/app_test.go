package server

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/server/config"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.Addr = "127.0.0.1:0"
	c.DatabaseDSN = filepath.Join(t.TempDir(), "relay.db")
	c.LogLevel = "error"
	return c
}

func TestNewApp_LocalBusAndSQLite(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.store.Close() })

	assert.Equal(t, storage.DialectSQLite, app.store.Dialect())
	assert.IsType(t, &fanout.LocalBus{}, app.bus)
	assert.Nil(t, app.rdb)
	assert.NotNil(t, app.hub)
}

func TestNewApp_BadRedisURL(t *testing.T) {
	c := testConfig(t)
	c.RedisURL = "not a url"

	_, err := NewApp(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bus init error")
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
