package models

// Event is the closed set of things that can happen to a joined session.
// The engine applies them through a single type switch; the unexported
// marker method keeps other packages from adding variants.
type Event interface {
	isEvent()
}

// InsertEvent carries a newly stored message, already decrypted.
type InsertEvent struct {
	Message Message
}

// DeleteAllEvent means the room's history was deleted on the relay.
type DeleteAllEvent struct {
	Room string
}

// TypingEvent is another participant's typing state change.
type TypingEvent struct {
	Name   string
	Typing bool
}

// RoomClearedEvent is the broadcast sent by whoever cleared the history.
type RoomClearedEvent struct {
	By string
}

// PresenceSyncEvent lists the keys currently tracked on the presence
// channel. Keys may repeat when one identity is attached more than once.
type PresenceSyncEvent struct {
	Keys []string
}

func (InsertEvent) isEvent()       {}
func (DeleteAllEvent) isEvent()    {}
func (TypingEvent) isEvent()       {}
func (RoomClearedEvent) isEvent()  {}
func (PresenceSyncEvent) isEvent() {}
