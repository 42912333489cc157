package cli

import (
	"context"
	"fmt"
	"log"
)

func (a *App) getStatus() string {
	s := ""
	if a.userName != "" {
		s = a.userName + " "
	} else {
		s = "no user "
	}
	if a.unlocked != nil {
		s = s + "unlocked "
	}
	if m := a.mode(); m != "" {
		s = s + string(m)
	}
	return fmt.Sprintf("(%s)", s)
}

// Root resolves the active user, starts the connectivity watcher and runs
// the REPL on stdin until the user exits.
func (a *App) Root(ctx context.Context) {
	log.Println("Welcome to matakeeper CLI (type 'help' for commands)")

	if err := a.session.Ping(ctx); err != nil {
		a.setMode(ModeOffline)
	} else {
		a.setMode(ModeOnline)
	}
	_ = a.Whoami(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	runREPL(ctx, a, a.getStatus, a.reader)
}
