package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/inferencegate/inferencegate/internal/logging"
	"github.com/inferencegate/inferencegate/internal/recorder"
	"github.com/inferencegate/inferencegate/internal/router"
	"github.com/inferencegate/inferencegate/internal/server"
	"github.com/inferencegate/inferencegate/internal/store"
	"github.com/inferencegate/inferencegate/internal/upstream"
)

func newStartCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the gateway in record-and-replay mode",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(flags, router.RecordAndReplay)
		},
	}
}

func newReplayCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "replay",
		Short: "Run the gateway in replay-only mode (no upstream contacted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGateway(flags, router.ReplayOnly)
		},
	}
}

func runGateway(flags *globalFlags, mode router.Mode) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(logging.Options{Verbose: cfg.Verbose})

	s, err := store.Open(cfg.CacheDir)
	if err != nil {
		return fmt.Errorf("opening cache store: %w", err)
	}

	gate := &router.Router{
		Store:    s,
		Recorder: recorder.New(s),
		Mode:     mode,
		Log:      log,
	}
	if mode == router.RecordAndReplay {
		gate.Forwarder = upstream.NewHTTPForwarder(cfg.Upstream, http.DefaultClient)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      server.New(cfg, gate, s),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Infof("inferencegate listening on %s (mode=%s)", httpServer.Addr, mode)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}
