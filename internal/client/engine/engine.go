// Package engine keeps a client's view of one room in sync with the relay.
//
// Join backfills the newest messages, decrypts them concurrently and only
// then opens the room's change feed and presence channel. Everything that
// arrives afterwards is turned into a models.Event and applied through a
// single switch under the engine mutex. Network and crypto work never run
// under that mutex.
//
// Each Join starts a new session. Results and events that belong to an older
// session are dropped, so a slow backfill can never overwrite the state of a
// newer Join or of a Leave.
package engine

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherroom/internal/client/presence"
	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/clock"
	"github.com/dmitrijs2005/cipherroom/internal/common"
	"github.com/dmitrijs2005/cipherroom/internal/cryptox"
	"github.com/dmitrijs2005/cipherroom/internal/logging"
	"github.com/dmitrijs2005/cipherroom/internal/models"
	"github.com/dmitrijs2005/cipherroom/internal/protocol"
	"github.com/dmitrijs2005/cipherroom/internal/room"
	"golang.org/x/sync/errgroup"
)

// DefaultBackfill is how many of the newest messages Join loads.
const DefaultBackfill = 200

// LostText is the notice emitted when the relay drops a subscription of the
// joined room.
const LostText = "connection to room lost"

type Options struct {
	Clock          clock.Clock
	Logger         logging.Logger
	BackfillLimit  int
	DecryptWorkers int
	TypingIdle     time.Duration
	// RequestTimeout bounds relay calls made outside a caller's context
	// (typing broadcasts, presence tracking).
	RequestTimeout time.Duration

	// OnUpdate is called after every state change, outside the engine lock.
	// Calls from different goroutines may overlap; State.Version orders them.
	OnUpdate func(State)
	// OnNotice receives notices that no caller gets as an error: actions of
	// other members and failures of background calls.
	OnNotice func(Notice)
}

func (o *Options) setDefaults() {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	if o.BackfillLimit <= 0 {
		o.BackfillLimit = DefaultBackfill
	}
	if o.DecryptWorkers <= 0 {
		o.DecryptWorkers = runtime.GOMAXPROCS(0)
	}
	if o.TypingIdle <= 0 {
		o.TypingIdle = presence.DefaultIdle
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = 10 * time.Second
	}
}

// session owns everything acquired by one Join. It is released exactly once,
// by the Leave or Join that replaces it.
type session struct {
	epoch    uint64
	room     string
	name     string
	password []byte

	feed    remote.Feed
	channel remote.Channel
	typist  *presence.Typist
	typing  *presence.TypingSet
	cancel  context.CancelFunc
}

type Engine struct {
	remote remote.Remote
	opts   Options
	logger logging.Logger

	mu       sync.Mutex
	epoch    uint64
	version  uint64
	phase    Phase
	sess     *session
	messages []models.Message
	online   int
	draft    string
}

func New(r remote.Remote, opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		remote: r,
		opts:   opts,
		logger: opts.Logger.With("module", "engine"),
	}
}

// validate checks the join inputs, which must already be canonical.
func validate(roomKey, name, password string) error {
	switch {
	case roomKey == "":
		return fmt.Errorf("%w: room is required", common.ErrValidation)
	case name == "":
		return fmt.Errorf("%w: name is required", common.ErrValidation)
	case password == "":
		return fmt.Errorf("%w: password is required", common.ErrValidation)
	}
	return nil
}

// Join leaves the current room, if any, and joins roomName. It returns once
// the backfill is applied and both subscriptions are open. If a Leave or
// another Join happens meanwhile, the result is discarded and
// common.ErrJoinSuperseded is returned.
func (e *Engine) Join(ctx context.Context, roomName, name, password string) error {
	key := room.Canonical(roomName)
	name = room.CanonicalName(name)
	if err := validate(key, name, password); err != nil {
		return err
	}

	s := &session{
		room:     key,
		name:     name,
		password: []byte(password),
		typing:   presence.NewTypingSet(name),
	}

	e.mu.Lock()
	old := e.detachLocked()
	e.epoch++
	s.epoch = e.epoch
	e.sess = s
	e.phase = Joining
	st := e.changedLocked()
	e.mu.Unlock()

	e.release(old)
	e.update(st)

	rows, err := e.remote.Recent(ctx, key, e.opts.BackfillLimit)
	if err != nil {
		return e.abortJoin(s, fmt.Errorf("backfill error: %w", err))
	}

	msgs, err := e.decryptAll(ctx, rows, password)
	if err != nil {
		return e.abortJoin(s, err)
	}

	if !e.isCurrent(s) {
		return common.ErrJoinSuperseded
	}

	feed, err := e.remote.Changes(ctx, key)
	if err != nil {
		return e.abortJoin(s, fmt.Errorf("subscribe error: %w", err))
	}
	channel, err := e.remote.Presence(ctx, key, name)
	if err != nil {
		_ = feed.Close()
		return e.abortJoin(s, fmt.Errorf("presence error: %w", err))
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	typist := presence.NewTypist(e.opts.Clock, e.opts.TypingIdle, e.typingSender(s, channel))

	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		cancel()
		_ = channel.Close()
		_ = feed.Close()
		return common.ErrJoinSuperseded
	}
	s.feed = feed
	s.channel = channel
	s.cancel = cancel
	s.typist = typist
	e.messages = msgs
	e.phase = Joined
	st = e.changedLocked()
	e.mu.Unlock()

	go e.pumpChanges(s, feed)
	go e.pumpSignals(pumpCtx, s, channel)

	e.logger.Info(ctx, "joined room", "room", key, "epoch", s.epoch, "backfill", len(msgs))
	e.update(st)
	return nil
}

// abortJoin returns to Idle unless s was already replaced.
func (e *Engine) abortJoin(s *session, err error) error {
	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return common.ErrJoinSuperseded
	}
	old := e.detachLocked()
	st := e.changedLocked()
	e.mu.Unlock()

	e.release(old)
	e.update(st)
	return err
}

func (e *Engine) decryptAll(ctx context.Context, rows []models.Message, password string) ([]models.Message, error) {
	out := make([]models.Message, len(rows))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.DecryptWorkers)
	for i, row := range rows {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out[i] = e.decode(row, password)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("backfill decrypt: %w", err)
	}
	return out, nil
}

func (e *Engine) decode(m models.Message, password string) models.Message {
	text, ok := cryptox.Open(m.Content, password)
	if !ok && cryptox.IsEnvelope(m.Content) {
		e.logger.Debug(context.Background(), "message not decryptable with room password", "id", m.ID)
	}
	m.Content = text
	return m
}

// Send encrypts text and inserts it. The message shows up once the change
// feed delivers it. On failure the draft is restored.
func (e *Engine) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return common.ErrEmptyMessage
	}
	if len(text) > protocol.MaxTextBytes {
		return fmt.Errorf("%w: message is longer than %d bytes", common.ErrValidation, protocol.MaxTextBytes)
	}

	e.mu.Lock()
	s := e.sess
	if s == nil || e.phase != Joined {
		e.mu.Unlock()
		return common.ErrNotJoined
	}
	password := string(s.password)
	if err := validate(s.room, s.name, password); err != nil {
		e.mu.Unlock()
		return err
	}
	e.draft = ""
	st := e.changedLocked()
	e.mu.Unlock()
	e.update(st)

	wire, err := cryptox.Seal(text, password)
	if err != nil {
		err = fmt.Errorf("encrypt error: %w", err)
	} else if _, ierr := e.remote.Insert(ctx, s.room, s.name, wire); ierr != nil {
		err = fmt.Errorf("send error: %w", ierr)
	}

	if err != nil {
		e.mu.Lock()
		if e.sess == s && e.draft == "" {
			e.draft = text
		}
		st = e.changedLocked()
		e.mu.Unlock()
		e.update(st)
		return err
	}

	s.typist.Set(false)
	return nil
}

// ClearHistory deletes every message of the room on the relay, then clears
// the local view and tells the other members who did it.
func (e *Engine) ClearHistory(ctx context.Context) error {
	e.mu.Lock()
	s := e.sess
	if s == nil || e.phase != Joined {
		e.mu.Unlock()
		return common.ErrNotJoined
	}
	e.mu.Unlock()

	if err := e.remote.DeleteRoom(ctx, s.room); err != nil {
		return fmt.Errorf("clear history error: %w", err)
	}

	e.mu.Lock()
	if e.sess == s {
		e.messages = nil
		s.typing.Clear()
	}
	st := e.changedLocked()
	e.mu.Unlock()
	e.update(st)

	if err := s.channel.Broadcast(ctx, models.BroadcastRoomCleared, presence.RoomClearedBroadcast(s.name)); err != nil {
		e.logger.Warn(ctx, "room_cleared broadcast failed", "room", s.room, "error", err)
	}
	e.notify(Notice{Level: NoticeInfo, Text: clearedText(s.name)})
	return nil
}

func clearedText(by string) string {
	return fmt.Sprintf("%s cleared the chat history", by)
}

// Typing records a keystroke in the composer.
func (e *Engine) Typing() {
	if s := e.joined(); s != nil {
		s.typist.Activity()
	}
}

// SetTyping sets the local typing flag directly.
func (e *Engine) SetTyping(typing bool) {
	if s := e.joined(); s != nil {
		s.typist.Set(typing)
	}
}

func (e *Engine) SetDraft(text string) {
	e.mu.Lock()
	e.draft = text
	st := e.changedLocked()
	e.mu.Unlock()
	e.update(st)
}

// Leave closes both subscriptions and forgets the session. It is safe to
// call at any time, any number of times.
func (e *Engine) Leave() {
	e.mu.Lock()
	old := e.detachLocked()
	st := e.changedLocked()
	e.mu.Unlock()

	if old == nil {
		return
	}
	e.release(old)
	e.logger.Info(context.Background(), "left room", "room", old.room)
	e.update(st)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

// changedLocked records a mutation and returns the new snapshot. Caller
// holds e.mu.
func (e *Engine) changedLocked() State {
	e.version++
	return e.snapshotLocked()
}

func (e *Engine) joined() *session {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.phase != Joined {
		return nil
	}
	return e.sess
}

func (e *Engine) isCurrent(s *session) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sess == s
}

// detachLocked resets the session state to Idle and returns the session to
// release. Caller holds e.mu.
func (e *Engine) detachLocked() *session {
	old := e.sess
	e.sess = nil
	e.epoch++
	e.phase = Idle
	e.messages = nil
	e.online = 0
	e.draft = ""
	if old != nil {
		common.WipeByteArray(old.password)
		old.typing.Clear()
	}
	return old
}

// release stops the typist and closes both subscriptions of s. The typist
// goes first so a pending typing=false still has a channel to go out on.
func (e *Engine) release(s *session) {
	if s == nil {
		return
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.typist != nil {
		s.typist.Stop(true)
	}
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			e.logger.Warn(context.Background(), "presence close failed", "room", s.room, "error", err)
		}
	}
	if s.feed != nil {
		if err := s.feed.Close(); err != nil {
			e.logger.Warn(context.Background(), "feed close failed", "room", s.room, "error", err)
		}
	}
}

func (e *Engine) snapshotLocked() State {
	st := State{
		Version:  e.version,
		Phase:    e.phase,
		Messages: slices.Clone(e.messages),
		Online:   e.online,
		Draft:    e.draft,
	}
	if s := e.sess; s != nil {
		st.Room = s.room
		st.Name = s.name
		st.Typing = s.typing.Names()
	}
	return st
}

func (e *Engine) update(st State) {
	if e.opts.OnUpdate != nil {
		e.opts.OnUpdate(st)
	}
}

func (e *Engine) notify(n Notice) {
	if e.opts.OnNotice != nil {
		e.opts.OnNotice(n)
	}
}
