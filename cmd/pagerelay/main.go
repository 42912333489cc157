package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/pagerelay"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
)

func main() {

	cfg, err := pagerelay.LoadConfig(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	items, err := pagerelay.LoadSeed(cfg.SeedFile)
	if err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)
	r := pagerelay.New(cfg, relay.NewMemoryPageStore(items), logger)

	if err := r.Run(ctx); err != nil {
		log.Fatalf("%v", err)
	}

}
