package config

import (
	"github.com/dmitrijs2005/cipherroom/internal/flagx"
)

// parseFlags populates Config fields from command-line flags. Unknown flags
// (for example -c) are skipped. A malformed value panics.
func parseFlags(cfg *Config, args []string) {
	fs := flagx.NewFlagSet("client")

	fs.StringVarP(&cfg.RelayURL, "relay-url", "u", cfg.RelayURL, "websocket URL of the relay")
	fs.StringVar(&cfg.InviteBase, "invite-base", cfg.InviteBase, "base URL for invite links")
	fs.StringVarP(&cfg.Invite, "invite", "i", cfg.Invite, "invite link to join from")
	fs.BoolVar(&cfg.Local, "local", cfg.Local, "run an in-process relay")
	fs.IntVar(&cfg.BackfillLimit, "backfill", cfg.BackfillLimit, "messages loaded on join")
	fs.DurationVar(&cfg.TypingIdle, "typing-idle", cfg.TypingIdle, "typing indicator idle timeout")
	fs.DurationVar(&cfg.RequestTimeout, "request-timeout", cfg.RequestTimeout, "relay request timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
