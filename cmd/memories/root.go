package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	clientconfig "github.com/nine4-team/memories-sub004/internal/client/config"
	"github.com/nine4-team/memories-sub004/internal/client/queue"
)

const rootLongDesc = `Memories captures moments, stories, and mementos on-device and syncs
them to a memories server in the background.

Capture never waits on the network:
  memories capture     Record a memory into the local queue
  memories sync        Drain the queue to the server now
  memories status      Show the queue
  memories retry       Requeue failed records`

var debugLogging bool

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "memories",
		Short:         "Memories - offline-first memory capture",
		Long:          rootLongDesc,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&debugLogging, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newCaptureCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRetryCmd())

	return cmd
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if debugLogging {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openQueue loads the client config and opens the capture queue,
// creating the data directory on first use.
func openQueue(logger *slog.Logger) (*clientconfig.Config, *queue.Queue, error) {
	cfg, err := clientconfig.Load()
	if err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(cfg.Data.Dir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	q, err := queue.Open(cfg.QueuePath(), logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, q, nil
}
