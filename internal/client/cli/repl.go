package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isLoggedIn() bool
	Whoami(ctx context.Context) error
	Keys(ctx context.Context, args []string) error
	Users(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Get(ctx context.Context, args []string) error
	Set(ctx context.Context, args []string) error
	StoreKeys(ctx context.Context, args []string) error
	Unlock(ctx context.Context) error
	Use(ctx context.Context, args []string) error
	Logout(ctx context.Context) error
	Export(ctx context.Context, args []string) error
	Settings(ctx context.Context, args []string) error
}

const (
	helpLoggedIn = "Available commands: whoami, keys [email], users [-v], sync, get <key>, set <key> <value>, " +
		"store-keys <email>, unlock, use <email>, logout, export [file] [--upload], settings [name value], exit"
	helpNoUser = "No active user, please log in to the web app or run store-keys.\n" +
		"Available commands: whoami, users [-v], store-keys <email>, use <email>, sync, get <key>, set <key> <value>, settings, exit"
)

// runREPL starts a simple read–eval–print loop for the matakeeper CLI.
//
// It reads a line from reader, parses the first token as the command and
// passes the rest as arguments to methods on 'a'. The same reader serves
// prompts issued by the commands themselves. The loop exits on EOF or when
// the user types "exit" or "quit".
//
// Errors returned by command handlers are ignored here; handlers report
// their own errors.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("mk %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			if a.isLoggedIn() {
				printlnFn(helpLoggedIn)
			} else {
				printlnFn(helpNoUser)
			}

		case "whoami":
			_ = a.Whoami(ctx)

		case "keys":
			_ = a.Keys(ctx, args)

		case "users":
			_ = a.Users(ctx, args)

		case "sync":
			_ = a.Sync(ctx)

		case "get":
			_ = a.Get(ctx, args)

		case "set":
			_ = a.Set(ctx, args)

		case "store-keys":
			_ = a.StoreKeys(ctx, args)

		case "unlock":
			_ = a.Unlock(ctx)

		case "use":
			_ = a.Use(ctx, args)

		case "logout":
			_ = a.Logout(ctx)

		case "export":
			_ = a.Export(ctx, args)

		case "settings":
			_ = a.Settings(ctx, args)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}

		if err != nil {
			return
		}
	}
}
