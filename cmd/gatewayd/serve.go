package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/wollfoo/ai-gateway/internal/api"
	"github.com/wollfoo/ai-gateway/internal/config"
	"github.com/wollfoo/ai-gateway/internal/dispatch"
	"github.com/wollfoo/ai-gateway/internal/executor"
	"github.com/wollfoo/ai-gateway/internal/gwauth"
)

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "path to the gateway configuration file")
	return cmd
}

func runServe(configPath string) error {
	snap, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if snap.Debug {
		log.SetLevel(log.DebugLevel)
	}

	store := config.NewStore(snap)
	router := gwauth.NewRouter(snap)
	execs := executor.NewSet(store)
	dispatcher := dispatch.New(store, router, execs)

	watcher := config.NewWatcher(configPath, store, router.UpdateFromConfig)
	if err := watcher.Start(); err != nil {
		return fmt.Errorf("start config watcher: %w", err)
	}
	defer watcher.Stop()

	_, engine := api.New(store, dispatcher)

	addr := fmt.Sprintf("%s:%d", snap.Host, snap.Port)
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  snap.RequestTimeout,
		WriteTimeout: 0, // streaming responses can run indefinitely
	}

	color.Green("%s listening on %s (config: %s)", appName, addr, configPath)
	log.Infof("gatewayd starting on %s", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-sigCh:
		color.Yellow("shutdown signal received, draining connections...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	color.Green("gatewayd exited cleanly")
	return nil
}
