package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/cipherroom/internal/client/config"
	"github.com/dmitrijs2005/cipherroom/internal/client/engine"
	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/client/session"
	"github.com/dmitrijs2005/cipherroom/internal/client/wsclient"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/room"
	"github.com/dmitrijs2005/cipherroom/internal/server/fanout"
	"github.com/dmitrijs2005/cipherroom/internal/server/hub"
	"github.com/dmitrijs2005/cipherroom/internal/server/storage"
)

// localDSN keeps the in-process relay in memory for the lifetime of the client.
const localDSN = ":memory:"

type App struct {
	config  *config.Config
	logger  logging.Logger
	chat    *session.Controller
	closer  func() error
	reader  *bufio.Reader
	out     *printer
	render  *renderer
	name    string
	invited string
}

// NewApp connects to the relay (or starts an in-process one when
// config.Local is set) and builds the chat controller.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	l := logging.New(os.Stderr, c.LogLevel, false)

	r, closer, err := newRemote(ctx, c, l)
	if err != nil {
		l.Error(ctx, "error connecting to relay", "error", err)
		return nil, err
	}

	a, err := newApp(c, r, l, os.Stdin, os.Stdout)
	if err != nil {
		_ = closer()
		return nil, err
	}
	a.closer = closer
	return a, nil
}

func newRemote(ctx context.Context, c *config.Config, l logging.Logger) (remote.Remote, func() error, error) {
	if c.Local {
		st, err := storage.Open(ctx, localDSN)
		if err != nil {
			return nil, nil, err
		}
		h := hub.New(st.Messages(), fanout.NewLocalBus(), l, hub.DefaultMaxBackfill)
		return remote.NewLoopback(h), st.Close, nil
	}

	ws, err := wsclient.Dial(ctx, c.RelayURL, l, c.RequestTimeout)
	if err != nil {
		return nil, nil, err
	}
	return ws, ws.Close, nil
}

func newApp(c *config.Config, r remote.Remote, l logging.Logger, in io.Reader, out io.Writer) (*App, error) {
	a := &App{
		config: c,
		logger: l,
		closer: func() error { return nil },
		reader: bufio.NewReader(in),
		out:    &printer{w: out},
	}
	a.render = newRenderer(a.out)

	if c.Invite != "" {
		key, err := room.ParseInvite(c.Invite)
		if err != nil {
			return nil, err
		}
		a.invited = key
	}

	a.chat = session.New(r, session.Options{
		InviteBase:     c.InviteBase,
		Logger:         l,
		BackfillLimit:  c.BackfillLimit,
		TypingIdle:     c.TypingIdle,
		RequestTimeout: c.RequestTimeout,
		OnChange: func(st engine.State) {
			a.render.render(st, a.chat.Render(st))
		},
	})
	return a, nil
}

// Run joins the invited room (or asks for one) and serves the REPL until
// the input ends or the user quits.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.close()

	go a.watchNotices(ctx)

	a.out.Println("Welcome to CipherRoom (type /help for commands)")
	if err := a.Join(ctx, a.invited); err != nil && errors.Is(err, io.EOF) {
		return
	}

	runREPL(ctx, a, a.prompt, a.reader)
}

func (a *App) close() {
	a.chat.Leave()
	a.drainNotices()
	if err := a.closer(); err != nil {
		a.logger.Warn(context.Background(), "close failed", "error", err)
	}
}

func (a *App) watchNotices(ctx context.Context) {
	for {
		select {
		case n := <-a.chat.Notices():
			a.out.Println(formatNotice(n))
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) drainNotices() {
	for {
		select {
		case n := <-a.chat.Notices():
			a.out.Println(formatNotice(n))
		default:
			return
		}
	}
}

func (a *App) prompt() string {
	st := a.chat.State()
	if !st.Joined() {
		return "cipherroom> "
	}
	return fmt.Sprintf("#%s %s> ", st.Room, st.Name)
}
