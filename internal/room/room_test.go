package room

import (
	"errors"
	"net/url"
	"testing"

	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" Room1 ", "room1"},
		{"room1", "room1"},
		{"\tLOBBY\n", "lobby"},
		{"", ""},
		{"   ", ""},
		{"Café Über", "café über"},
	}
	for _, tt := range tests {
		got := Canonical(tt.in)
		assert.Equal(t, tt.want, got, "Canonical(%q)", tt.in)
		assert.Equal(t, got, Canonical(got), "Canonical must be idempotent for %q", tt.in)
	}
	assert.Equal(t, Canonical(" Room1 "), Canonical("room1"))
}

func TestCanonicalName_PreservesCase(t *testing.T) {
	assert.Equal(t, "Alice", CanonicalName("  Alice "))
	assert.Equal(t, "bob", CanonicalName("bob"))
}

func TestInviteLink(t *testing.T) {
	link, err := InviteLink("https://chat.example/join", "  Secret Room ")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "secret room", u.Query().Get(InviteParam))
	assert.Len(t, u.Query(), 1, "invite link must carry nothing but the room")

	back, err := ParseInvite(link)
	require.NoError(t, err)
	assert.Equal(t, "secret room", back)
}

func TestInviteLink_KeepsExistingQuery(t *testing.T) {
	link, err := InviteLink("https://chat.example/?lang=en", "Test")
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "en", u.Query().Get("lang"))
	assert.Equal(t, "test", u.Query().Get(InviteParam))
}

func TestInviteLink_Errors(t *testing.T) {
	_, err := InviteLink("https://chat.example/", "  ")
	require.True(t, errors.Is(err, common.ErrValidation))

	_, err = InviteLink("://bad", "room")
	require.Error(t, err)

	_, err = ParseInvite("https://chat.example/")
	require.True(t, errors.Is(err, common.ErrValidation))
}
