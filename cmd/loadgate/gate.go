package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/assets"
	"github.com/JesseSolomon/dev.jessesolomon.me/config"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/protocol"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// serverGate holds readiness until every scene's shaders were fetched
type serverGate struct {
	cfg     config.Config
	logger  telemetry.Logger
	metrics core.Metrics
	wg      sync.WaitGroup

	mu      sync.RWMutex
	barrier loading.Barrier
}

func newServerGate(cfg config.Config, logger telemetry.Logger, metrics core.Metrics) *serverGate {
	return &serverGate{
		cfg:     cfg,
		logger:  logger.WithModule("lifecycle"),
		metrics: metrics,
	}
}

// Start fetches the shaders of every scene relative to baseURL and records
// the base load condition once all fetches are under way
func (g *serverGate) Start(ctx context.Context, baseURL string) error {
	scenes := make(map[string]map[string]string, len(g.cfg.Scenes))
	for _, sc := range g.cfg.Scenes {
		urls, err := resolveURLs(baseURL, sc.Shaders)
		if err != nil {
			return fmt.Errorf("scene %s: %w", sc.Name, err)
		}
		scenes[sc.Name] = urls
	}

	opts := loading.Options{Logger: g.logger, Metrics: g.metrics}
	loaderCfg := assets.LoaderConfig{
		Concurrency: g.cfg.Assets.Concurrency,
		Timeout:     g.cfg.Assets.Timeout,
		Logger:      g.logger,
	}

	var (
		barrier loading.Barrier
		bus     *loading.Bus
	)
	switch g.cfg.Gate.Variant {
	case core.VariantRegistry:
		rb := loading.NewRegistryBarrier(g.cfg.Gate.Barrier(), opts)
		loader := assets.NewLoader(loaderCfg)
		for _, sc := range g.cfg.Scenes {
			if _, err := loader.Register(ctx, rb, sc.Name, scenes[sc.Name]); err != nil {
				return err
			}
		}
		g.setBarrier(rb)
		rb.Load()
		barrier = rb

	default:
		bus = loading.NewBus(loading.BusConfig{Logger: g.logger})
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			_ = bus.Run(ctx)
		}()

		cb := loading.NewCountingBarrier(g.cfg.Gate.Barrier(), opts)
		cb.Attach(bus)
		g.setBarrier(cb)

		loaderCfg.Bus = bus
		loader := assets.NewLoader(loaderCfg)
		for _, sc := range g.cfg.Scenes {
			if _, err := loader.Go(ctx, sc.Name, scenes[sc.Name]); err != nil {
				return err
			}
		}
		if err := bus.Publish(core.LoadEvent{}); err != nil {
			return err
		}
		barrier = cb
	}

	if g.cfg.Gate.StallInterval <= 0 {
		return nil
	}
	watchdog := loading.NewWatchdog(barrier, loading.WatchdogConfig{
		Interval: g.cfg.Gate.StallInterval,
		Logger:   g.logger,
		Metrics:  g.metrics,
		Bus:      bus,
	})
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		_ = watchdog.Run(ctx)
	}()
	return nil
}

func (g *serverGate) setBarrier(b loading.Barrier) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.barrier = b
}

// Wait blocks until the gate's goroutines returned
func (g *serverGate) Wait() {
	g.wg.Wait()
}

// ServeHTTP reports readiness: 200 once the barrier opened without error,
// 503 otherwise. The body is a loading snapshot.
func (g *serverGate) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.RLock()
	barrier := g.barrier
	g.mu.RUnlock()

	snap := protocol.SnapshotPayload{Status: protocol.StatusWaiting}
	if barrier != nil {
		snap = snapshotOf(barrier)
	}

	w.Header().Set("Content-Type", "application/json")
	if snap.Status != protocol.StatusLoaded {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(snap)
}

func snapshotOf(b loading.Barrier) protocol.SnapshotPayload {
	st := b.Stats()
	return protocol.SnapshotPayload{
		Status:      protocol.StatusOf(st.Loaded, st.Fired, b.Err()),
		Started:     st.Started,
		Ended:       st.Ended,
		Failed:      st.Failed,
		Outstanding: st.Outstanding,
	}
}

// resolveURLs resolves every shader path against base
func resolveURLs(base string, shaders map[string]string) (map[string]string, error) {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("base url: %w", err)
	}

	resolved := make(map[string]string, len(shaders))
	for name, path := range shaders {
		ref, err := url.Parse(path)
		if err != nil {
			return nil, fmt.Errorf("shader %s: %w", name, err)
		}
		resolved[name] = baseURL.ResolveReference(ref).String()
	}
	return resolved, nil
}
