// Package room canonicalizes room identifiers and display names and builds
// invite links. Every storage key, subscription key and invite link must go
// through Canonical, otherwise participants typing the same room with a
// different case or padding end up in disjoint rooms.
package room

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/cipherroom/internal/common"
)

// InviteParam is the query parameter carrying the room in an invite link.
const InviteParam = "room"

// Canonical returns the canonical room key: trimmed and lower-cased.
func Canonical(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// CanonicalName trims a display name. Case is preserved.
func CanonicalName(raw string) string {
	return strings.TrimSpace(raw)
}

// InviteLink returns base with the canonical room set as a query parameter.
// The password is never part of the link; it has to be shared out of band.
func InviteLink(base, room string) (string, error) {
	key := Canonical(room)
	if key == "" {
		return "", fmt.Errorf("%w: room is required", common.ErrValidation)
	}
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid invite base %q: %w", base, err)
	}
	q := u.Query()
	q.Set(InviteParam, key)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ParseInvite extracts the canonical room from an invite link.
func ParseInvite(link string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return "", fmt.Errorf("invalid invite link: %w", err)
	}
	key := Canonical(u.Query().Get(InviteParam))
	if key == "" {
		return "", fmt.Errorf("%w: invite link has no room", common.ErrValidation)
	}
	return key, nil
}
