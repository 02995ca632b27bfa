// Command loadgate serves the landing page, gates its startup on shader
// loading and streams loading progress to connected pages.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/JesseSolomon/dev.jessesolomon.me/config"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	promexp "github.com/JesseSolomon/dev.jessesolomon.me/observability/prometheus"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to a YAML config file.")
		addr       = flag.String("addr", "", "Listen address, overrides server.addr.")
		logLevel   = flag.String("log-level", "", "Log level, overrides log.level.")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := telemetry.New(telemetry.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("loadgate failed", telemetry.Err(err))
		os.Exit(1)
	}
}

// run serves until ctx is done
func run(ctx context.Context, cfg config.Config, logger telemetry.Logger) error {
	reg := prom.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var metrics *promexp.MetricsExporter
	if cfg.Metrics.Enabled {
		var err error
		metrics, err = promexp.NewMetricsExporter(cfg.Metrics.Namespace, reg, promexp.ExporterOptions{})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	gate := newServerGate(cfg, logger, scopeMetrics(metrics, "server"))
	sessions := newSessionHandler(cfg, logger, scopeMetrics(metrics, "page"))

	mux := http.NewServeMux()
	mux.Handle("/ws", sessions)
	mux.Handle("/readyz", gate)
	mux.Handle("/breakpoints", breakpointHandler{table: cfg.Breakpoints, logger: logger})
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}
	mux.Handle("/", http.FileServer(http.Dir(cfg.Server.StaticDir)))

	srv := &http.Server{
		Handler:     mux,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve(ln)
	}()
	logger.Info("listening", telemetry.String("addr", ln.Addr().String()))

	base := cfg.Assets.BaseURL
	if base == "" {
		base = "http://" + ln.Addr().String()
	}
	if err := gate.Start(ctx, base); err != nil {
		_ = srv.Close()
		return fmt.Errorf("start gate: %w", err)
	}

	select {
	case err := <-serveErr:
		gate.Wait()
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	sessions.Wait()
	gate.Wait()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func scopeMetrics(m *promexp.MetricsExporter, scope string) core.Metrics {
	if m == nil {
		return core.NilMetrics{}
	}
	return m.Scope(scope)
}
