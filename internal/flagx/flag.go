// Package flagx holds the command-line plumbing shared by the relay and
// client configuration loaders.
package flagx

import (
	"io"

	"github.com/spf13/pflag"
)

// ConfigFlag is the long name of the flag pointing at the config file; -c is
// its shorthand.
const ConfigFlag = "config"

// NewFlagSet returns a flag set that skips flags it does not define, so the
// config-file lookup and the per-component flags can each parse the full
// argument list.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	return fs
}

// ConfigPath extracts the -c / --config value from args. If the flag is not
// present an empty string is returned.
func ConfigPath(args []string) string {
	var config string

	fs := NewFlagSet("json")
	fs.StringVarP(&config, ConfigFlag, "c", "", "path to config file")
	_ = fs.Parse(args)

	return config
}
