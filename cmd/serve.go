package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MimeLyc/dualsub/internal/config"
	"github.com/MimeLyc/dualsub/internal/httpapi"
	"github.com/MimeLyc/dualsub/internal/service"
	"github.com/MimeLyc/dualsub/pkg/log"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var (
	uiDir string
	addr  string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the caption engine behind the HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	serveCmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: $HTTP_ADDR)")
	serveCmd.Flags().StringVar(&uiDir, "ui-dir", "", "Serve a single page app from this directory")
}

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronEngine interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config) error {
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	// The loop outlives ctx so the final flush can still run on it.
	loopCtx, stopLoop := context.WithCancel(context.Background())
	defer stopLoop()
	go func() { _ = eng.loop.Run(loopCtx) }()
	defer closeSession(eng.session)

	c := cron.New()
	maintenance := service.NewMaintenanceService(eng.local, cfg.Cache.PruneTarget, cfg.Cache.MaintenanceCron, c)

	srv := httpapi.NewServer(eng.session,
		httpapi.WithAllowedOrigins(cfg.HTTP.AllowedOrigins),
		httpapi.WithUI(uiDir, uiDir != ""),
	)

	if addr != "" {
		cfg.HTTP.Addr = addr
	}
	return runWithComponents(ctx, cfg, maintenance, c, srv)
}

func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, c cronEngine, srv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	c.Start()
	defer c.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- srv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
