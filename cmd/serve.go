package cmd

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relayops/relaybot/internal/alert"
	"github.com/relayops/relaybot/internal/cache"
	"github.com/relayops/relaybot/internal/checkpoint"
	"github.com/relayops/relaybot/internal/config"
	"github.com/relayops/relaybot/internal/engine"
	"github.com/relayops/relaybot/internal/matrix"
	"github.com/relayops/relaybot/internal/members"
	"github.com/relayops/relaybot/internal/monitor"
	"github.com/relayops/relaybot/internal/poller"
	"github.com/relayops/relaybot/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the relay bot and the alert ingestion API",
	Long: `Starts every long-lived task: the member registry refresh, the monitor
websocket client, the chat polling loop and the alert ingestion HTTP
server. Runs until SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		if verbose {
			log.Printf("serve: configuration loaded from %s (data_path=%s, checkpoint=%s)",
				cfgFile, cfg.DataPath, cfg.Checkpoint)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		store := cache.New(cfg.Redis)
		defer store.Close()
		if err := store.WaitReady(ctx); err != nil {
			return fmt.Errorf("waiting for cache: %w", err)
		}

		cursors, err := openCheckpointStore(cfg)
		if err != nil {
			return fmt.Errorf("opening checkpoint store: %w", err)
		}
		if closer, ok := cursors.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		transport := matrix.New(cfg.Matrix, cursors, Version)
		eng := engine.New(store, transport, cfg)

		// Seed the member set once; a failed fetch only costs the
		// "unknown member" replies until the next restart.
		go func() {
			if err := members.NewSeeder(cfg.MembersJSONURL, store).Seed(ctx); err != nil {
				log.Printf("serve: member seeding failed: %v", err)
			}
		}()

		if cfg.Monitor.URL != "" {
			mon := monitor.New(cfg.Monitor.URL, cfg.Monitor.APIKey, func(ctx context.Context, a alert.Alert) {
				if _, err := eng.ProcessAlert(ctx, a); err != nil {
					log.Printf("serve: processing streamed alert %d for %s failed: %v", a.Code, a.MemberID, err)
				}
			})
			go func() {
				if err := mon.Run(ctx); err != nil && ctx.Err() == nil {
					log.Printf("serve: monitor stream stopped: %v", err)
				}
			}()
		}

		errorInterval := time.Duration(cfg.ErrorInterval) * time.Second
		go func() {
			if err := poller.New(transport, eng, errorInterval).Run(ctx); err != nil && ctx.Err() == nil {
				log.Printf("serve: polling loop stopped: %v", err)
			}
		}()

		srv := server.New(cfg.API, eng)
		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.Start()
		}()

		select {
		case <-ctx.Done():
			log.Printf("serve: shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			return fmt.Errorf("api server: %w", err)
		}
	},
}

// openCheckpointStore picks the configured sync cursor backend.
func openCheckpointStore(cfg *config.Config) (checkpoint.Store, error) {
	switch cfg.Checkpoint {
	case config.CheckpointSQLite:
		return checkpoint.OpenSQLite(filepath.Join(cfg.DataPath, "relaybot.db"))
	default:
		return checkpoint.NewFileStore(cfg.DataPath)
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
