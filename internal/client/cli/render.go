package cli

import (
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/cipherroom/internal/client/engine"
	"github.com/dmitrijs2005/cipherroom/internal/client/session"
)

// printer serializes writes from the REPL and the engine callbacks.
type printer struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *printer) Println(a ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, a...)
}

// renderer prints the difference between consecutive views: new messages,
// online count and typing label changes. Snapshots older than the last one
// printed are ignored.
type renderer struct {
	out *printer

	mu      sync.Mutex
	version uint64
	room    string
	seen    map[string]struct{}
	online  string
	typing  string
}

func newRenderer(out *printer) *renderer {
	return &renderer{out: out, seen: make(map[string]struct{})}
}

func (r *renderer) render(st engine.State, v session.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st.Version <= r.version {
		return
	}
	r.version = st.Version

	if v.Room != r.room {
		r.room = v.Room
		r.seen = make(map[string]struct{})
		r.online = ""
		r.typing = ""
	}
	if len(v.Lines) == 0 {
		// history cleared
		r.seen = make(map[string]struct{})
	}

	for _, l := range v.Lines {
		if _, ok := r.seen[l.ID]; ok {
			continue
		}
		r.seen[l.ID] = struct{}{}
		r.out.Println(formatLine(l))
	}

	if v.OnlineLabel != r.online {
		r.online = v.OnlineLabel
		if r.online != "" {
			r.out.Println("--", r.online)
		}
	}
	if v.TypingLabel != r.typing {
		r.typing = v.TypingLabel
		if r.typing != "" {
			r.out.Println("--", r.typing)
		}
	}
}

func formatLine(l session.Line) string {
	author := l.Author
	if l.Mine {
		author += " (you)"
	}
	if l.Time == "" {
		return fmt.Sprintf("<%s> %s", author, l.Text)
	}
	return fmt.Sprintf("[%s] <%s> %s", l.Time, author, l.Text)
}

func formatNotice(n engine.Notice) string {
	if n.Level == engine.NoticeError {
		return "! " + n.Text
	}
	return "* " + n.Text
}
