package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/freelago/chatkit/internal/config"
	"github.com/freelago/chatkit/internal/devserver"
	"github.com/freelago/chatkit/internal/logger"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "devserver",
		Short: "In-memory chat backend for development and testing",
		RunE:  run,
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg := config.Load()

	log, err := logger.New(cfg.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := devserver.New(log, cfg.JWTSecret)

	httpSrv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: srv.Router(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv.Run(ctx)
		return nil
	})

	g.Go(func() error {
		log.Infow("dev server listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("dev server stopped")
	return nil
}
