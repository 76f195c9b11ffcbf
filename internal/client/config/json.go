package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cipherroom/internal/flagx"
	"github.com/dmitrijs2005/cipherroom/internal/timex"
	"github.com/tidwall/jsonc"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Absent keys
// stay nil and leave the corresponding Config field untouched.
type JsonConfig struct {
	RelayURL       *string         `json:"relay_url"`
	InviteBase     *string         `json:"invite_base"`
	Local          *bool           `json:"local"`
	BackfillLimit  *int            `json:"backfill_limit"`
	TypingIdle     *timex.Duration `json:"typing_idle"`
	RequestTimeout *timex.Duration `json:"request_timeout"`
	LogLevel       *string         `json:"log_level"`
}

// parseJson overlays Config with values loaded from the file named by -c or
// --config. Read or decode errors panic.
func parseJson(cfg *Config, args []string) {
	path := flagx.ConfigPath(args)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	var jc JsonConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &jc); err != nil {
		panic(err)
	}

	if jc.RelayURL != nil {
		cfg.RelayURL = *jc.RelayURL
	}
	if jc.InviteBase != nil {
		cfg.InviteBase = *jc.InviteBase
	}
	if jc.Local != nil {
		cfg.Local = *jc.Local
	}
	if jc.BackfillLimit != nil {
		cfg.BackfillLimit = *jc.BackfillLimit
	}
	if jc.TypingIdle != nil {
		cfg.TypingIdle = jc.TypingIdle.Duration
	}
	if jc.RequestTimeout != nil {
		cfg.RequestTimeout = jc.RequestTimeout.Duration
	}
	if jc.LogLevel != nil {
		cfg.LogLevel = *jc.LogLevel
	}
}
