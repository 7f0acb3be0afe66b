package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cwbudde/msetgen/internal/engine"
	"github.com/cwbudde/msetgen/internal/server"
	"github.com/cwbudde/msetgen/internal/store"
	"github.com/spf13/cobra"
)

var (
	serveAddr     string
	serveWorkers  int
	serveQueue    int
	serveDataDir  string
	serveBackend  string
	serveSkip     string
	serveShutdown time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server",
	Long: `Starts the section service. Jobs are queued with POST /api/v1/jobs and run by a
fixed pool of workers, each owning its generators. Progress streams over SSE at
/api/v1/jobs/{id}/stream and the dashboard is served at /.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Listen address")
	serveCmd.Flags().IntVar(&serveWorkers, "workers", 1, "Number of generator workers")
	serveCmd.Flags().IntVar(&serveQueue, "queue", 64, "Maximum queued jobs")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Persist sections under this directory (empty = in memory only)")
	serveCmd.Flags().StringVar(&serveBackend, "backend", "auto", "Lane backend (auto, generic, swar, avx2)")
	serveCmd.Flags().StringVar(&serveSkip, "skip", "none", "Skip policy (none, positive, low-detail)")
	serveCmd.Flags().DurationVar(&serveShutdown, "shutdown-timeout", 30*time.Second, "Time to drain running jobs on shutdown")

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	skip, err := engine.ParseSkipPolicy(serveSkip)
	if err != nil {
		return err
	}

	pool := server.PoolConfig{
		Workers:   serveWorkers,
		QueueSize: serveQueue,
		Backend:   serveBackend,
		Skip:      skip,
	}
	if serveDataDir != "" {
		fs, err := store.NewFSStore(serveDataDir)
		if err != nil {
			return fmt.Errorf("failed to create section store: %w", err)
		}
		pool.Store = fs
		pool.DataDir = serveDataDir
	}

	srv := server.NewServer(server.Config{Addr: serveAddr, Pool: pool})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Signal received, shutting down", "timeout", serveShutdown)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdown)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
