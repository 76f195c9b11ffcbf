package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatOnline(t *testing.T) {
	assert.Equal(t, "", FormatOnline(0))
	assert.Equal(t, "1 online", FormatOnline(1))
	assert.Equal(t, "12 online", FormatOnline(12))
}

func TestFormatTyping(t *testing.T) {
	tests := []struct {
		names []string
		want  string
	}{
		{nil, ""},
		{[]string{"alice"}, "alice is typing..."},
		{[]string{"alice", "bob"}, "alice and bob are typing..."},
		{[]string{"alice", "bob", "carol"}, "alice, bob and carol are typing..."},
		{[]string{"alice", "bob", "carol", "dave", "erin"}, "alice, bob and 3 others are typing..."},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTyping(tt.names))
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2026, 6, 1, 18, 30, 0, 0, time.UTC)

	assert.Equal(t, "", FormatTime(time.Time{}, now))
	assert.Equal(t, "09:05", FormatTime(time.Date(2026, 6, 1, 9, 5, 0, 0, time.UTC), now))
	assert.Equal(t, "May 31 23:59", FormatTime(time.Date(2026, 5, 31, 23, 59, 0, 0, time.UTC), now))
	assert.Equal(t, "Dec 24 2025 10:00", FormatTime(time.Date(2025, 12, 24, 10, 0, 0, 0, time.UTC), now))
}
