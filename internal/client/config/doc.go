// Package config loads runtime configuration for the chat client.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or --config. Comments and
//     trailing commas are accepted.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-u, --relay-url string        websocket URL of the relay
//	    --invite-base string      base URL for invite links
//	-i, --invite string           invite link to join from
//	    --local                   use an in-process relay
//	    --backfill int            messages loaded on join
//	    --typing-idle duration    typing indicator idle timeout
//	    --request-timeout duration
//	    --log-level string
//
// # JSON schema
//
// Durations use timex.Duration, so values can be strings like "1.5s" or
// integer nanoseconds:
//
//	{
//	  "relay_url": "wss://relay.example/ws",
//	  "invite_base": "https://cipherroom.example/join",
//	  "backfill_limit": 200,
//	  "typing_idle": "1.5s",
//	  "request_timeout": "10s",
//	  "log_level": "warn"
//	}
//
// The room password is never read from configuration.
package config
