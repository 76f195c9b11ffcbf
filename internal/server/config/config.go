// Package config handles configuration for the relay, including defaults,
// JSON overlay, and command-line flags.
package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the relay.
//
// Fields:
//   - Addr: HTTP listen address serving /ws, /healthz and /metrics.
//   - DatabaseDSN: postgres URL (pgx) or an SQLite path / URI.
//   - RedisURL: optional redis:// URL; when set, events fan out across relay nodes.
//   - RedisChannel: pub/sub channel shared by the nodes.
//   - MetricsEnabled: mount the prometheus handler.
//   - MaxBackfill: upper bound for the limit of a recent request.
//   - LogLevel: debug, info, warn or error.
//   - ShutdownTimeout: grace period for the HTTP server on shutdown.
type Config struct {
	Addr            string
	DatabaseDSN     string
	RedisURL        string
	RedisChannel    string
	MetricsEnabled  bool
	MaxBackfill     int
	LogLevel        string
	ShutdownTimeout time.Duration
}

// LoadDefaults populates Config with development defaults: a local SQLite
// file and a single node.
func (c *Config) LoadDefaults() {
	c.Addr = ":8080"
	c.DatabaseDSN = "cipherroom.db"
	c.RedisURL = ""
	c.RedisChannel = "cipherroom:events"
	c.MetricsEnabled = true
	c.MaxBackfill = 200
	c.LogLevel = "info"
	c.ShutdownTimeout = 5 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file and finally from command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
