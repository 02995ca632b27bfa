package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/config"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/stages"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// sessionHandler gives every connected page its own barrier. The page
// reports its lifecycle over the socket and receives progress messages.
type sessionHandler struct {
	cfg      config.Config
	logger   telemetry.Logger
	metrics  core.Metrics
	upgrader websocket.Upgrader

	seq atomic.Uint64
	wg  sync.WaitGroup
}

func newSessionHandler(cfg config.Config, logger telemetry.Logger, metrics core.Metrics) *sessionHandler {
	return &sessionHandler{
		cfg:     cfg,
		logger:  logger.WithModule("session"),
		metrics: metrics,
	}
}

func (h *sessionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", telemetry.Err(err))
		return
	}

	h.wg.Add(1)
	defer h.wg.Done()
	defer conn.Close()

	sessionID := fmt.Sprintf("page-%d", h.seq.Add(1))
	logger := h.logger.With(telemetry.String("session_id", sessionID))
	logger.Info("page connected", telemetry.String("remote", r.RemoteAddr))

	if err := h.serve(r.Context(), conn, sessionID, logger); err != nil {
		logger.Warn("session ended", telemetry.Err(err))
		return
	}
	logger.Info("page disconnected")
}

// serve runs one page session until the page disconnects or ctx is done
func (h *sessionHandler) serve(ctx context.Context, conn *websocket.Conn, sessionID string, logger telemetry.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := loading.NewBus(loading.BusConfig{Logger: logger})
	barrier := loading.NewCountingBarrier(h.cfg.Gate.Barrier(), loading.Options{Logger: logger, Metrics: h.metrics})
	detach := barrier.Attach(bus)
	defer detach()

	watchdog := loading.NewWatchdog(barrier, loading.WatchdogConfig{
		Interval: h.cfg.Gate.StallInterval,
		Logger:   logger,
		Metrics:  h.metrics,
		Bus:      bus,
	})

	snap := snapshotOf(barrier)
	sink := stages.NewWebSocketSink(stages.WebSocketSinkConfig{
		Conn:      conn,
		SessionID: sessionID,
		Snapshot:  &snap,
		Logger:    logger,
	})
	screen := stages.NewLoadingScreen(stages.LoadingScreenConfig{
		OnReveal: func(ev core.LoadedEvent) {
			logger.Info("page loaded", telemetry.Duration("elapsed", ev.Elapsed), telemetry.Int("tasks", ev.TasksStarted))
		},
		Logger: logger,
	})
	source := stages.NewWebSocketSource(stages.WebSocketSourceConfig{
		Conn:      conn,
		SessionID: sessionID,
		Bus:       bus,
		Logger:    logger,
	})

	// Streams subscribe before the source publishes anything
	progress := bus.Stream(ctx)
	loaded := bus.Stream(ctx, core.EventTypeLoaded)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(bus.Run(gctx))
	})
	if h.cfg.Gate.StallInterval > 0 {
		g.Go(func() error {
			return ignoreCanceled(watchdog.Run(gctx))
		})
	}
	g.Go(func() error {
		return ignoreCanceled(sink.Process(gctx, progress, nil))
	})
	g.Go(func() error {
		return ignoreCanceled(screen.Process(gctx, loaded, nil))
	})
	g.Go(func() error {
		// The page going away ends the session
		defer cancel()
		return ignoreCanceled(source.Run(gctx, nil))
	})
	err := g.Wait()

	if ev, ok := screen.Loaded(); ok {
		logger.Debug("session revealed", telemetry.Int("tasks_ended", ev.TasksEnded), telemetry.Int("tasks_failed", ev.TasksFailed))
	} else {
		logger.Info("page left before it loaded", telemetry.Int("outstanding", barrier.Stats().Outstanding))
	}
	return err
}

// Wait blocks until every session returned
func (h *sessionHandler) Wait() {
	h.wg.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
