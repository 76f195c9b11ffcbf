package engine

import "github.com/dmitrijs2005/cipherroom/internal/models"

// Phase is the engine lifecycle: Idle -> Joining -> Joined -> Idle.
type Phase int

const (
	Idle Phase = iota
	Joining
	Joined
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return "unknown"
	}
}

type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeError
)

func (l NoticeLevel) String() string {
	if l == NoticeError {
		return "error"
	}
	return "info"
}

// Notice is a dismissible message for the user.
type Notice struct {
	Level NoticeLevel
	Text  string
}

// State is a snapshot of the session. Slices are copies and may be kept.
type State struct {
	// Version increases with every change.
	Version  uint64
	Phase    Phase
	Room     string
	Name     string
	Messages []models.Message
	Online   int
	// Typing lists other members currently typing, sorted.
	Typing []string
	Draft  string
}

func (s State) Joined() bool {
	return s.Phase == Joined
}
