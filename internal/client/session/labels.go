package session

import (
	"fmt"
	"strings"
	"time"
)

// FormatOnline renders an online count.
func FormatOnline(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("%d online", n)
}

// FormatTyping renders the names of members typing, e.g.
// "alice and bob are typing...".
func FormatTyping(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing..."
	case 2:
		return names[0] + " and " + names[1] + " are typing..."
	case 3:
		return strings.Join(names[:2], ", ") + " and " + names[2] + " are typing..."
	default:
		return fmt.Sprintf("%s and %d others are typing...", strings.Join(names[:2], ", "), len(names)-2)
	}
}

// FormatTime renders a message timestamp relative to now: the time of day
// for today's messages, the date and time otherwise.
func FormatTime(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}
	lt := t.In(now.Location())
	y1, m1, d1 := lt.Date()
	y2, m2, d2 := now.Date()
	if y1 == y2 && m1 == m2 && d1 == d2 {
		return lt.Format("15:04")
	}
	if y1 == y2 {
		return lt.Format("Jan 2 15:04")
	}
	return lt.Format("Jan 2 2006 15:04")
}
