package cli

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/cipherroom/internal/common"
)

func (a *App) isJoined() bool {
	return a.chat.State().Joined()
}

// Join prompts for whatever is missing to enter roomName and joins it.
// The name of the previous join is offered as the default.
func (a *App) Join(ctx context.Context, roomName string) error {
	var err error
	if roomName == "" {
		roomName, err = GetTextWithDefault(a.reader, "Room", a.invited, a.out.w)
		if err != nil {
			return err
		}
	}
	name, err := GetTextWithDefault(a.reader, "Display name", a.name, a.out.w)
	if err != nil {
		return err
	}
	pw, err := GetPassword(a.reader, a.out.w)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		a.out.Println("! could not read password:", err)
		return err
	}
	defer common.WipeByteArray(pw)

	if err := a.chat.Join(ctx, roomName, name, string(pw)); err != nil {
		return err
	}
	a.name = name
	return nil
}

func (a *App) Leave(ctx context.Context) error {
	if !a.isJoined() {
		a.out.Println("! not in a room")
		return common.ErrNotJoined
	}
	a.chat.Leave()
	return nil
}

func (a *App) Clear(ctx context.Context) error {
	return a.chat.ClearHistory(ctx)
}

func (a *App) Who(ctx context.Context) error {
	if !a.isJoined() {
		a.out.Println("! not in a room")
		return common.ErrNotJoined
	}
	online := a.chat.OnlineLabel()
	if online == "" {
		online = "presence not synced yet"
	}
	a.out.Println("--", online)
	if typing := a.chat.TypingLabel(); typing != "" {
		a.out.Println("--", typing)
	}
	return nil
}

func (a *App) Invite(ctx context.Context) error {
	link, err := a.chat.InviteLink()
	if err != nil {
		a.out.Println("! join a room first")
		return err
	}
	a.out.Println("Invite link:", link)
	a.out.Println("Share the room password separately.")
	return nil
}

// Say sends one chat line. A line mode terminal only sees whole lines, so
// composing is reported as a single activity right before the send.
func (a *App) Say(ctx context.Context, text string) error {
	a.chat.SetDraft(text)
	a.chat.Typing()
	if err := a.chat.Send(ctx, text); err != nil {
		return err
	}
	a.chat.SetDraft("")
	return nil
}
