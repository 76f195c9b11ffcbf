// Package session is the chat controller the terminal talks to. It forwards
// user verbs to the engine, turns every failure into a notice and renders
// read-only projections of the engine state.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/client/engine"
	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/clock"
	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/room"
)

const defaultNoticeBuffer = 32

type Options struct {
	// InviteBase is the URL invite links are built on.
	InviteBase   string
	Clock        clock.Clock
	Logger       logging.Logger
	NoticeBuffer int
	// OnChange is a redraw hint, called after every state change.
	OnChange func(engine.State)

	BackfillLimit  int
	TypingIdle     time.Duration
	RequestTimeout time.Duration
}

type Controller struct {
	engine     *engine.Engine
	inviteBase string
	clock      clock.Clock
	logger     logging.Logger
	notices    chan engine.Notice
}

func New(r remote.Remote, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.NoticeBuffer <= 0 {
		opts.NoticeBuffer = defaultNoticeBuffer
	}

	c := &Controller{
		inviteBase: opts.InviteBase,
		clock:      opts.Clock,
		logger:     opts.Logger.With("module", "session"),
		notices:    make(chan engine.Notice, opts.NoticeBuffer),
	}
	c.engine = engine.New(r, engine.Options{
		Clock:          opts.Clock,
		Logger:         opts.Logger,
		BackfillLimit:  opts.BackfillLimit,
		TypingIdle:     opts.TypingIdle,
		RequestTimeout: opts.RequestTimeout,
		OnUpdate:       opts.OnChange,
		OnNotice:       c.push,
	})
	return c
}

// Notices delivers info and error notices. When nobody reads, the oldest
// notices are dropped.
func (c *Controller) Notices() <-chan engine.Notice {
	return c.notices
}

func (c *Controller) push(n engine.Notice) {
	for {
		select {
		case c.notices <- n:
			return
		default:
		}
		select {
		case <-c.notices:
		default:
		}
	}
}

func (c *Controller) info(text string) {
	c.push(engine.Notice{Level: engine.NoticeInfo, Text: text})
}

// fail surfaces err as an error notice and returns it.
func (c *Controller) fail(ctx context.Context, verb string, err error) error {
	if text := describe(err); text != "" {
		c.logger.Debug(ctx, verb+" failed", "error", err)
		c.push(engine.Notice{Level: engine.NoticeError, Text: text})
	}
	return err
}

func describe(err error) string {
	switch {
	case errors.Is(err, common.ErrJoinSuperseded):
		return ""
	case errors.Is(err, common.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, common.ErrNotJoined):
		return "join a room first"
	case errors.Is(err, common.ErrValidation):
		return strings.TrimPrefix(err.Error(), common.ErrValidation.Error()+": ")
	case errors.Is(err, common.ErrUnavailable), errors.Is(err, common.ErrClosed):
		return "relay unavailable: " + err.Error()
	default:
		return err.Error()
	}
}

func (c *Controller) Join(ctx context.Context, roomName, name, password string) error {
	if err := c.engine.Join(ctx, roomName, name, password); err != nil {
		return c.fail(ctx, "join", err)
	}
	c.info("joined #" + room.Canonical(roomName))
	return nil
}

func (c *Controller) Send(ctx context.Context, text string) error {
	if err := c.engine.Send(ctx, text); err != nil {
		return c.fail(ctx, "send", err)
	}
	return nil
}

// Typing records composer activity.
func (c *Controller) Typing() {
	c.engine.Typing()
}

func (c *Controller) SetDraft(text string) {
	c.engine.SetDraft(text)
}

func (c *Controller) ClearHistory(ctx context.Context) error {
	if err := c.engine.ClearHistory(ctx); err != nil {
		return c.fail(ctx, "clear history", err)
	}
	return nil
}

func (c *Controller) Leave() {
	joined := c.engine.State().Joined()
	c.engine.Leave()
	if joined {
		c.info("left the room")
	}
}

func (c *Controller) State() engine.State {
	return c.engine.State()
}

// InviteLink returns the invite link of the current room.
func (c *Controller) InviteLink() (string, error) {
	st := c.engine.State()
	if st.Room == "" {
		return "", common.ErrNotJoined
	}
	return room.InviteLink(c.inviteBase, st.Room)
}

func (c *Controller) OnlineLabel() string {
	return FormatOnline(c.engine.State().Online)
}

func (c *Controller) TypingLabel() string {
	return FormatTyping(c.engine.State().Typing)
}

// TimeLabel formats a message timestamp for display.
func (c *Controller) TimeLabel(t time.Time) string {
	return FormatTime(t, c.clock.Now())
}

// Line is one rendered message.
type Line struct {
	ID     string
	Author string
	Text   string
	Time   string
	Mine   bool
}

type View struct {
	Phase       engine.Phase
	Room        string
	Name        string
	Lines       []Line
	Online      int
	OnlineLabel string
	Typing      []string
	TypingLabel string
	Draft       string
	Invite      string
}

// View renders the current state.
func (c *Controller) View() View {
	return c.Render(c.engine.State())
}

// Render builds a View from a state snapshot.
func (c *Controller) Render(st engine.State) View {
	now := c.clock.Now()
	v := View{
		Phase:       st.Phase,
		Room:        st.Room,
		Name:        st.Name,
		Lines:       make([]Line, 0, len(st.Messages)),
		Online:      st.Online,
		OnlineLabel: FormatOnline(st.Online),
		Typing:      st.Typing,
		TypingLabel: FormatTyping(st.Typing),
		Draft:       st.Draft,
	}
	for _, m := range st.Messages {
		v.Lines = append(v.Lines, Line{
			ID:     m.ID,
			Author: m.Author,
			Text:   m.Content,
			Time:   FormatTime(m.CreatedAt, now),
			Mine:   m.Author == st.Name,
		})
	}
	if st.Room != "" && c.inviteBase != "" {
		if link, err := room.InviteLink(c.inviteBase, st.Room); err == nil {
			v.Invite = link
		}
	}
	return v
}
