package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigPath(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"short with value", []string{"-c", "/path/short.json"}, "/path/short.json"},
		{"long with value", []string{"--config", "/path/long.json"}, "/path/long.json"},
		{"long with equals", []string{"--config=/path/eq.json"}, "/path/eq.json"},
		{"unknown flags are ignored", []string{"-x", "1", "--yy", "2"}, ""},
		{"mixed with other flags", []string{"-a", ":8080", "-c", "relay.jsonc", "--log-level", "debug"}, "relay.jsonc"},
		{"last wins", []string{"-c", "/path/1.json", "--config", "/path/2.json"}, "/path/2.json"},
		{"no args", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ConfigPath(tt.args))
		})
	}
}

func TestNewFlagSet_SkipsUnknown(t *testing.T) {
	var addr string
	fs := NewFlagSet("test")
	fs.StringVarP(&addr, "addr", "a", "", "")

	require.NoError(t, fs.Parse([]string{"--unknown", "v", "-a", ":9000", "-z"}))
	assert.Equal(t, ":9000", addr)
}
