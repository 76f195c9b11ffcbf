package cli

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeChat struct {
	joined bool
	calls  []string
}

func (f *fakeChat) isJoined() bool { return f.joined }

func (f *fakeChat) Join(ctx context.Context, room string) error {
	f.calls = append(f.calls, "join:"+room)
	f.joined = true
	return nil
}

func (f *fakeChat) Leave(ctx context.Context) error {
	f.calls = append(f.calls, "leave")
	f.joined = false
	return nil
}

func (f *fakeChat) Clear(ctx context.Context) error { f.calls = append(f.calls, "clear"); return nil }
func (f *fakeChat) Who(ctx context.Context) error   { f.calls = append(f.calls, "who"); return nil }

func (f *fakeChat) Invite(ctx context.Context) error {
	f.calls = append(f.calls, "invite")
	return nil
}

func (f *fakeChat) Say(ctx context.Context, text string) error {
	f.calls = append(f.calls, "say:"+text)
	return nil
}

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, strings.TrimSuffix(fmt.Sprintln(a...), "\n"))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &lines
}

func TestRunREPL_CommandsAndChat(t *testing.T) {
	out := captureOutput(t)

	input := strings.Join([]string{
		"hello before join",
		"/join lobby",
		"hi all",
		"",
		"/who",
		"/invite",
		"/clear",
		"/bogus",
		"/help",
		"/leave",
		"/join",
		"/quit",
		"never read",
	}, "\n")

	chat := &fakeChat{}
	runREPL(context.Background(), chat, func() string { return "> " }, rdr(input))

	assert.Equal(t, []string{
		"join:lobby", "say:hi all", "who", "invite", "clear", "leave", "join:",
	}, chat.calls)
	assert.Contains(t, *out, "Not in a room. Use /join to enter one.")
	assert.Contains(t, *out, "Unknown command: /bogus")
	assert.Contains(t, *out, helpText)
	assert.Equal(t, "Bye!", (*out)[len(*out)-1])
}

func TestRunREPL_StopsOnEOF(t *testing.T) {
	captureOutput(t)
	chat := &fakeChat{joined: true}
	runREPL(context.Background(), chat, func() string { return "> " }, rdr("last words"))
	assert.Equal(t, []string{"say:last words"}, chat.calls)
}

func TestRunREPL_StopsOnCancelledContext(t *testing.T) {
	captureOutput(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	chat := &fakeChat{joined: true}
	runREPL(ctx, chat, func() string { return "> " }, rdr("hi\n"))
	assert.Empty(t, chat.calls)
}
