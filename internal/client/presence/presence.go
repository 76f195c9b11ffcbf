// Package presence holds the client side of the presence channel: occupancy
// counting, the typing set of other members, the local typing debounce and
// decoding of broadcast payloads.
package presence

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/dmitrijs2005/cipherroom/internal/models"
)

// DefaultClearedBy names the actor of a room_cleared broadcast that did not
// say who sent it.
const DefaultClearedBy = "someone"

// Count returns the number of distinct non-empty keys.
func Count(keys []string) int {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		seen[k] = struct{}{}
	}
	return len(seen)
}

// TypingSet holds the display names of other members currently typing.
// It is not safe for concurrent use.
type TypingSet struct {
	self  string
	names map[string]struct{}
}

// NewTypingSet returns a set that ignores events about self.
func NewTypingSet(self string) *TypingSet {
	return &TypingSet{self: strings.TrimSpace(self), names: make(map[string]struct{})}
}

// Apply records a typing event and reports whether the set changed.
func (s *TypingSet) Apply(name string, typing bool) bool {
	name = strings.TrimSpace(name)
	if name == "" || name == s.self {
		return false
	}
	_, had := s.names[name]
	if typing {
		s.names[name] = struct{}{}
		return !had
	}
	delete(s.names, name)
	return had
}

func (s *TypingSet) Clear() {
	clear(s.names)
}

func (s *TypingSet) Len() int {
	return len(s.names)
}

// Names returns the members typing, sorted.
func (s *TypingSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// EventFromBroadcast decodes a broadcast into its engine event. Unknown
// events and typing events without a name are reported as not ok.
func EventFromBroadcast(event string, payload json.RawMessage) (models.Event, bool) {
	switch event {
	case models.BroadcastTyping:
		var p models.TypingPayload
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &p); err != nil {
				return nil, false
			}
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, false
		}
		return models.TypingEvent{Name: p.Name, Typing: p.Typing}, true

	case models.BroadcastRoomCleared:
		var p models.RoomClearedPayload
		if len(payload) > 0 {
			// a malformed body still means the room was cleared
			_ = json.Unmarshal(payload, &p)
		}
		by := strings.TrimSpace(p.By)
		if by == "" {
			by = DefaultClearedBy
		}
		return models.RoomClearedEvent{By: by}, true

	default:
		return nil, false
	}
}

// TypingBroadcast encodes the local user's typing flag.
func TypingBroadcast(name string, typing bool) json.RawMessage {
	data, _ := json.Marshal(models.TypingPayload{Name: name, Typing: typing})
	return data
}

// RoomClearedBroadcast encodes a room_cleared notification by name.
func RoomClearedBroadcast(by string) json.RawMessage {
	data, _ := json.Marshal(models.RoomClearedPayload{By: by})
	return data
}
