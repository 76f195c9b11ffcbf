package config

import (
	"os"
	"time"
)

// Config holds runtime settings for the chat client.
//
// Fields:
//   - RelayURL: websocket endpoint of the relay (ws:// or wss://).
//   - InviteBase: URL invite links are built on.
//   - Invite: invite link to prefill the room from.
//   - Local: run an in-process relay on an in-memory SQLite store instead of dialing RelayURL.
//   - BackfillLimit: number of recent messages loaded on join.
//   - TypingIdle: quiet period after which the typing indicator is withdrawn.
//   - RequestTimeout: upper bound for a single relay request.
//   - LogLevel: debug, info, warn or error. Logs go to stderr.
type Config struct {
	RelayURL       string
	InviteBase     string
	Invite         string
	Local          bool
	BackfillLimit  int
	TypingIdle     time.Duration
	RequestTimeout time.Duration
	LogLevel       string
}

// LoadDefaults populates c with defaults for a relay on localhost.
func (c *Config) LoadDefaults() {
	c.RelayURL = "ws://localhost:8080/ws"
	c.InviteBase = "https://cipherroom.example/join"
	c.Invite = ""
	c.Local = false
	c.BackfillLimit = 200
	c.TypingIdle = 1500 * time.Millisecond
	c.RequestTimeout = 10 * time.Second
	c.LogLevel = "warn"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg, os.Args[1:])
	parseFlags(cfg, os.Args[1:])
	return cfg
}
