package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ledger-dash/internal/dashboard"
	"ledger-dash/internal/metrics"
	"ledger-dash/internal/snapshot"
	"ledger-dash/internal/state"
	"ledger-dash/internal/web"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the dashboard and keep it in sync with the ledger server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	slog.Info("Starting ledger-dash", "version", version, "component", "Main")
	slog.Info("Watching ledger server", "url", cfg.Upstream.URL, "login", cfg.Upstream.Username != "", "component", "Main")
	slog.Info("Sync interval", "interval", cfg.Sync.Interval, "component", "Main")

	appState := state.New(cfg.Log.MaxEntries)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	ctrl := dashboard.New(snapshot.New(cfg.Upstream), appState, m)

	// Channel for the web UI to trigger a sync
	triggerSync := make(chan struct{}, 1)

	webServer := web.New(appState, ctrl, triggerSync, cfg.Web,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return webServer.Run(gctx)
	})
	g.Go(func() error {
		return syncLoop(gctx, ctrl, triggerSync, cfg.Sync.Interval)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	slog.Info("Shut down", "component", "Main")
	return err
}

// syncer is the part of the controller the loop drives.
type syncer interface {
	Sync(ctx context.Context) error
}

// syncLoop runs one sync at startup, then one per trigger and, if interval is
// positive, one per tick. Failed cycles are recorded on the state by the
// controller and never stop the loop.
func syncLoop(ctx context.Context, s syncer, trigger <-chan struct{}, interval time.Duration) error {
	s.Sync(ctx)

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			slog.Debug("Sync triggered", "trigger", "scheduled", "component", "Main")
			s.Sync(ctx)
		case <-trigger:
			slog.Info("Sync triggered", "trigger", "web UI", "component", "Main")
			s.Sync(ctx)
		case <-ctx.Done():
			slog.Info("Shutting down gracefully", "component", "Main")
			return nil
		}
	}
}
