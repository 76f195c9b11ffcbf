package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

const helpText = "Commands: /join [room], /leave, /clear, /who, /invite, /help, /quit. Anything else is sent to the room."

// chatIface is the command surface the REPL drives. App satisfies it; tests
// provide a stub.
type chatIface interface {
	isJoined() bool
	Join(ctx context.Context, room string) error
	Leave(ctx context.Context) error
	Clear(ctx context.Context) error
	Who(ctx context.Context) error
	Invite(ctx context.Context) error
	Say(ctx context.Context, text string) error
}

// runREPL reads lines from reader until EOF, /quit or ctx is done. Lines
// starting with a slash are commands, everything else is chat.
//
// Errors returned by handlers are ignored here; the chat controller already
// reports them as notices.
func runREPL(ctx context.Context, a chatIface, promptFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(promptFn())
		line, err := readLine(reader)
		if err != nil {
			return
		}
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			if !a.isJoined() {
				printlnFn("Not in a room. Use /join to enter one.")
				continue
			}
			_ = a.Say(ctx, line)
			continue
		}

		parts := strings.Fields(line)
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "/help":
			printlnFn(helpText)

		case "/join":
			room := ""
			if len(args) > 0 {
				room = args[0]
			}
			_ = a.Join(ctx, room)

		case "/leave":
			_ = a.Leave(ctx)

		case "/clear":
			_ = a.Clear(ctx)

		case "/who":
			_ = a.Who(ctx)

		case "/invite":
			_ = a.Invite(ctx)

		case "/quit", "/exit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
