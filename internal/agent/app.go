// Package agent wires the background process: the structured store, the
// page-relay hub, the synchronizer and the message bus. It records lifecycle
// markers, runs periodic heartbeat and sync jobs and shuts down gracefully.
package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrijs2005/matakeeper/internal/agent/config"
	"github.com/dmitrijs2005/matakeeper/internal/backup"
	"github.com/dmitrijs2005/matakeeper/internal/bus"
	"github.com/dmitrijs2005/matakeeper/internal/common"
	"github.com/dmitrijs2005/matakeeper/internal/extstore"
	"github.com/dmitrijs2005/matakeeper/internal/keylookup"
	"github.com/dmitrijs2005/matakeeper/internal/logging"
	"github.com/dmitrijs2005/matakeeper/internal/metrics"
	"github.com/dmitrijs2005/matakeeper/internal/relay"
	"github.com/dmitrijs2005/matakeeper/internal/settings"
	"github.com/dmitrijs2005/matakeeper/internal/storagesync"
)

type App struct {
	config  *config.Config
	logger  logging.Logger
	store   *extstore.SQLStore
	metrics *metrics.Metrics
	hub     *relay.Hub
	sync    *storagesync.Service
	keys    *keylookup.Service
	bus     *bus.Server
	now     func() time.Time
}

func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	store, err := extstore.Open(ctx, c.DatabaseDriver, c.DatabaseDSN, c.QuotaBytes, logger)
	if err != nil {
		return nil, fmt.Errorf("store init error: %w", err)
	}

	m := metrics.New()
	hub := relay.NewHub([]byte(c.RelaySecret), relay.DefaultOriginPatterns, logger, m)
	ss := storagesync.New(store, hub, logger, m, c.SyncOptions())
	ks := keylookup.New(store, hub, logger, m, c.LookupOptions())

	deps := bus.Deps{
		Sync:   ss,
		Keys:   ks,
		Store:  store,
		Relays: hub,
		Backup: backup.NewAssembler(store, logger),
	}
	if c.S3().Enabled() {
		sink, err := backup.NewS3Sink(ctx, c.S3())
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		deps.Sink = sink
	}

	srv := bus.NewServer(c.GRPCAddr, logger, m)
	bus.RegisterHandlers(srv, deps)

	app := &App{
		config:  c,
		logger:  logger.With("module", "agent"),
		store:   store,
		metrics: m,
		hub:     hub,
		sync:    ss,
		keys:    ks,
		bus:     srv,
		now:     time.Now,
	}
	hub.OnConnect(app.onRelay)
	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

// startup records the lifecycle markers. A first run (no last version)
// stores default settings.
func (app *App) startup(ctx context.Context) error {
	prev, err := app.store.Get(ctx, common.LastVersionKey)
	if err != nil {
		return fmt.Errorf("read last version: %w", err)
	}

	last, seen := prev[common.LastVersionKey]
	switch {
	case !seen:
		if _, err := settings.EnsureDefaults(ctx, app.store); err != nil {
			return err
		}
		app.logger.Info(ctx, "First run, default settings stored", "version", app.config.Version)
	case last != app.config.Version:
		app.logger.Info(ctx, "Agent updated", "from", last, "to", app.config.Version)
	}

	return app.store.Set(ctx, map[string]any{
		common.InitializedKey:      common.UnixMillis(app.now()),
		common.ExtensionVersionKey: app.config.Version,
		common.LastVersionKey:      app.config.Version,
	})
}

func (app *App) heartbeat(ctx context.Context) {
	if err := app.store.Set(ctx, map[string]any{common.HeartbeatKey: common.UnixMillis(app.now())}); err != nil {
		app.logger.Warn(ctx, "heartbeat failed", "error", err)
	}
}

func (app *App) syncOnce(ctx context.Context) {
	res, err := app.sync.SyncAll(ctx)
	switch {
	case errors.Is(err, common.ErrNoRelay):
		app.logger.Debug(ctx, "periodic sync skipped, no relay and no stored users")
	case err != nil:
		app.logger.Warn(ctx, "periodic sync failed", "error", err)
	default:
		app.logger.Info(ctx, "periodic sync done", "synced", res.SyncedCount, "errors", res.ErrorCount, "partial", res.PartialSync)
	}
}

// onRelay pulls the critical records from a freshly connected page and then
// runs a full sync.
func (app *App) onRelay(ctx context.Context, r relay.Relay) {
	tctx, cancel := context.WithTimeout(ctx, app.config.RelayTimeout)
	files, err := r.TriggerCriticalSync(tctx)
	cancel()
	if err != nil {
		app.logger.Warn(ctx, "critical sync request failed", "relay", r.ID(), "error", err)
	} else {
		items := make(map[string]any, len(files))
		for k, v := range files {
			items[k] = v
		}
		if _, err := app.sync.SyncCriticalFiles(ctx, items); err != nil {
			app.logger.Warn(ctx, "critical sync failed", "relay", r.ID(), "error", err)
		}
	}

	app.syncOnce(ctx)
}

func (app *App) every(ctx context.Context, d time.Duration, fn func(context.Context)) {
	if d <= 0 {
		return
	}
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fn(ctx)
		}
	}
}

func (app *App) httpHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(relay.Path, app.hub)
	mux.Handle("/metrics", app.metrics.Handler())
	return mux
}

func (app *App) serveHTTP(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{Handler: app.httpHandler(), ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		app.logger.Info(ctx, "Stopping relay listener...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	app.logger.Info(ctx, "Starting relay listener", "address", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Run serves until ctx is done or a signal arrives, then closes the store.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting agent...", "version", app.config.Version)

	app.initSignalHandler(cancelFunc)

	if err := app.startup(ctx); err != nil {
		_ = app.store.Close()
		return err
	}

	relayLis, err := net.Listen("tcp", app.config.RelayAddr)
	if err != nil {
		_ = app.store.Close()
		return err
	}

	var wg sync.WaitGroup

	wg.Add(4)
	go func() {
		defer wg.Done()
		if err := app.bus.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		if err := app.serveHTTP(ctx, relayLis); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}()
	go func() {
		defer wg.Done()
		app.heartbeat(ctx)
		app.every(ctx, app.config.HeartbeatInterval, app.heartbeat)
	}()
	go func() {
		defer wg.Done()
		app.every(ctx, app.config.SyncInterval, app.syncOnce)
	}()

	wg.Wait()
	app.sync.Wait()

	app.logger.Info(context.WithoutCancel(ctx), "Agent stopped")
	return app.store.Close()
}
