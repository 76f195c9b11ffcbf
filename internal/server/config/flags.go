package config

import (
	"github.com/dmitrijs2005/cipherroom/internal/flagx"
)

// parseFlags populates Config fields from command-line flags.
//
//	-a, --addr string            listen address (e.g. ":8080")
//	-d, --database-dsn string    postgres URL or SQLite path
//	-r, --redis-url string       redis URL for multi-node fan-out
//	    --redis-channel string   redis pub/sub channel
//	    --metrics                serve /metrics
//	    --max-backfill int       cap for recent requests
//	    --log-level string       debug|info|warn|error
//	    --shutdown-timeout dur   HTTP shutdown grace period
//
// Unknown flags (for example -c) are skipped. A malformed value panics.
func parseFlags(config *Config, args []string) {
	fs := flagx.NewFlagSet("relay")

	fs.StringVarP(&config.Addr, "addr", "a", config.Addr, "address and port to listen on")
	fs.StringVarP(&config.DatabaseDSN, "database-dsn", "d", config.DatabaseDSN, "database DSN")
	fs.StringVarP(&config.RedisURL, "redis-url", "r", config.RedisURL, "redis URL")
	fs.StringVar(&config.RedisChannel, "redis-channel", config.RedisChannel, "redis pub/sub channel")
	fs.BoolVar(&config.MetricsEnabled, "metrics", config.MetricsEnabled, "serve prometheus metrics")
	fs.IntVar(&config.MaxBackfill, "max-backfill", config.MaxBackfill, "maximum rows per recent request")
	fs.StringVar(&config.LogLevel, "log-level", config.LogLevel, "log level")
	fs.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "shutdown grace period")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
