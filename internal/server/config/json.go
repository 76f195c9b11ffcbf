package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cipherroom/internal/flagx"
	"github.com/dmitrijs2005/cipherroom/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is the on-disk shape of the relay config. Pointer fields tell
// an absent key apart from a zero value.
type JsonConfig struct {
	Addr            *string         `json:"addr"`
	DatabaseDSN     *string         `json:"database_dsn"`
	RedisURL        *string         `json:"redis_url"`
	RedisChannel    *string         `json:"redis_channel"`
	MetricsEnabled  *bool           `json:"metrics_enabled"`
	MaxBackfill     *int            `json:"max_backfill"`
	LogLevel        *string         `json:"log_level"`
	ShutdownTimeout *timex.Duration `json:"shutdown_timeout"`
}

// parseJson overlays values from the file named by -c / --config. Comments
// and trailing commas are allowed. No flag means no file. An unreadable or
// malformed file panics.
func parseJson(config *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(jsonc.ToJSON(data), c); err != nil {
		panic(err)
	}

	if c.Addr != nil {
		config.Addr = *c.Addr
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.RedisURL != nil {
		config.RedisURL = *c.RedisURL
	}
	if c.RedisChannel != nil {
		config.RedisChannel = *c.RedisChannel
	}
	if c.MetricsEnabled != nil {
		config.MetricsEnabled = *c.MetricsEnabled
	}
	if c.MaxBackfill != nil {
		config.MaxBackfill = *c.MaxBackfill
	}
	if c.LogLevel != nil {
		config.LogLevel = *c.LogLevel
	}
	if c.ShutdownTimeout != nil {
		config.ShutdownTimeout = c.ShutdownTimeout.Duration
	}
}
