package engine

import (
	"context"

	"github.com/dmitrijs2005/cipherroom/internal/client/presence"
	"github.com/dmitrijs2005/cipherroom/internal/client/remote"
	"github.com/dmitrijs2005/cipherroom/internal/models"
)

// pumpChanges turns the change feed into events until the feed closes. A
// feed that closes while its session is still current was lost.
func (e *Engine) pumpChanges(s *session, feed remote.Feed) {
	for c := range feed.Events() {
		if c.Room != "" && c.Room != s.room {
			continue
		}
		switch c.Kind {
		case models.ChangeInsert:
			if c.Row == nil {
				continue
			}
			password, ok := e.password(s)
			if !ok {
				return
			}
			e.apply(s, models.InsertEvent{Message: e.decode(*c.Row, password)})
		case models.ChangeDelete:
			e.apply(s, models.DeleteAllEvent{Room: s.room})
		}
	}
	e.lost(s, "change feed")
}

// pumpSignals turns presence signals into events until the channel closes.
// A channel that closes while its session is still current was lost.
func (e *Engine) pumpSignals(ctx context.Context, s *session, channel remote.Channel) {
	for sig := range channel.Signals() {
		switch sig.Kind {
		case remote.SignalSubscribed:
			tctx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
			err := channel.Track(tctx)
			cancel()
			if err != nil && ctx.Err() == nil {
				e.logger.Warn(ctx, "presence track failed", "room", s.room, "error", err)
				e.notify(Notice{Level: NoticeError, Text: "could not announce presence: " + err.Error()})
			}
		case remote.SignalPresence:
			e.apply(s, models.PresenceSyncEvent{Keys: sig.Keys})
		case remote.SignalBroadcast:
			ev, ok := presence.EventFromBroadcast(sig.Event, sig.Payload)
			if !ok {
				e.logger.Debug(ctx, "ignoring broadcast", "event", sig.Event)
				continue
			}
			e.apply(s, ev)
		}
	}
	e.lost(s, "presence channel")
}

// lost ends s after one of its subscriptions closed underneath it, so the
// user sees the failure and can join again.
func (e *Engine) lost(s *session, what string) {
	e.mu.Lock()
	if e.sess != s {
		e.mu.Unlock()
		return
	}
	old := e.detachLocked()
	st := e.changedLocked()
	e.mu.Unlock()

	e.logger.Warn(context.Background(), "subscription lost", "room", s.room, "subscription", what)
	e.release(old)
	e.update(st)
	e.notify(Notice{Level: NoticeError, Text: LostText})
}

// password returns the password of s while s is the current session.
func (e *Engine) password(s *session) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != s {
		return "", false
	}
	return string(s.password), true
}

// apply is the single place where events change the session state. Events
// of a replaced session are dropped.
func (e *Engine) apply(s *session, ev models.Event) {
	var notice *Notice

	e.mu.Lock()
	if e.sess != s || e.phase != Joined {
		e.mu.Unlock()
		return
	}

	switch ev := ev.(type) {
	case models.InsertEvent:
		if e.hasMessageLocked(ev.Message.ID) {
			e.mu.Unlock()
			return
		}
		e.messages = append(e.messages, ev.Message)
	case models.DeleteAllEvent:
		e.messages = nil
	case models.TypingEvent:
		if !s.typing.Apply(ev.Name, ev.Typing) {
			e.mu.Unlock()
			return
		}
	case models.RoomClearedEvent:
		e.messages = nil
		s.typing.Clear()
		notice = &Notice{Level: NoticeInfo, Text: clearedText(ev.By)}
	case models.PresenceSyncEvent:
		e.online = presence.Count(ev.Keys)
	}

	st := e.changedLocked()
	e.mu.Unlock()

	e.update(st)
	if notice != nil {
		e.notify(*notice)
	}
}

func (e *Engine) hasMessageLocked(id string) bool {
	if id == "" {
		return false
	}
	for i := len(e.messages) - 1; i >= 0; i-- {
		if e.messages[i].ID == id {
			return true
		}
	}
	return false
}

// typingSender transmits the local typing flag on channel as s's member.
func (e *Engine) typingSender(s *session, channel remote.Channel) func(bool) {
	return func(typing bool) {
		ctx, cancel := context.WithTimeout(context.Background(), e.opts.RequestTimeout)
		defer cancel()
		if err := channel.Broadcast(ctx, models.BroadcastTyping, presence.TypingBroadcast(s.name, typing)); err != nil {
			e.logger.Warn(ctx, "typing broadcast failed", "room", s.room, "error", err)
		}
	}
}
