// Package server wires the relay together: storage, fan-out bus, hub and the
// websocket transport, and runs it until a shutdown signal arrives.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/server/config"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/storage"
	"github.com/dmitrijs2005/cipherroom/internal/server/transport"
	"github.com/redis/go-redis/v9"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	store     *storage.Store
	bus       fanout.Bus
	rdb       *redis.Client
	hub       *hub.Hub
	transport *transport.Server
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stdout, c.LogLevel, true)

	st, err := storage.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	bus, rdb, err := newBus(ctx, c, logger)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("bus init error: %w", err)
	}

	h := hub.New(st.Messages(), bus, logger, c.MaxBackfill)

	return &App{
		config:    c,
		logger:    logger,
		store:     st,
		bus:       bus,
		rdb:       rdb,
		hub:       h,
		transport: transport.NewServer(h, logger),
	}, nil
}

// newBus returns the local bus, or a redis bus and its client when a redis
// URL is configured.
func newBus(ctx context.Context, c *config.Config, l logging.Logger) (fanout.Bus, *redis.Client, error) {
	if c.RedisURL == "" {
		return fanout.NewLocalBus(), nil, nil
	}
	rdb, err := fanout.NewRedisClient(ctx, c.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	bus, err := fanout.NewRedisBus(ctx, rdb, c.RedisChannel, l)
	if err != nil {
		_ = rdb.Close()
		return nil, nil, err
	}
	return bus, rdb, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	srv := &http.Server{
		Addr:    app.config.Addr,
		Handler: app.transport.Router(app.config.MetricsEnabled),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		app.transport.CloseAll()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "relay listening", "addr", app.config.Addr, "dialect", app.store.Dialect())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting relay...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.bus.Close(); err != nil {
		app.logger.Error(ctx, "bus close error", "error", err)
	}
	if app.rdb != nil {
		_ = app.rdb.Close()
	}
	if err := app.store.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
	app.logger.Info(ctx, "relay stopped")
}
