package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/nine4-team/memories-sub004/internal/client/queue"
	"github.com/nine4-team/memories-sub004/internal/client/remote"
	syncengine "github.com/nine4-team/memories-sub004/internal/client/sync"
)

type syncCommander struct {
	serverURL string
	watch     bool
}

func newSyncCmd() *cobra.Command {
	cmder := &syncCommander{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Drain the capture queue to the server",
		Long: `Sync uploads every pending capture to the server in capture order.
With --watch it keeps running and drains on an interval.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&cmder.serverURL, "server", "", "Override the configured server URL")
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Keep running and sync periodically")

	return cmd
}

func (c *syncCommander) run(ctx context.Context) error {
	logger := newLogger()

	cfg, q, err := openQueue(logger)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	serverURL := cfg.Server.URL
	if c.serverURL != "" {
		serverURL = c.serverURL
	}
	client, err := remote.NewClient(serverURL)
	if err != nil {
		return err
	}

	engineConfig := syncengine.Config{
		BaseDelay:   cfg.Sync.BaseDelay(),
		MaxDelay:    cfg.Sync.MaxDelay(),
		MaxAttempts: cfg.Sync.MaxAttempts,
		Concurrency: cfg.Sync.Concurrency,
	}

	if c.watch {
		return c.watchLoop(ctx, q, client, cfg.Sync.Interval(), engineConfig, logger)
	}

	pending, err := q.ListPending(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("Nothing to sync.")
		return nil
	}

	engine, err := syncengine.NewEngine(q, client, nil, engineConfig, logger)
	if err != nil {
		return err
	}
	if err := engine.DrainOnce(ctx); err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	return c.report(ctx, q, len(pending))
}

// watchLoop runs the engine as a long-lived process, draining on the
// configured interval until interrupted.
func (c *syncCommander) watchLoop(
	ctx context.Context,
	q *queue.Queue,
	client *remote.Client,
	interval time.Duration,
	engineConfig syncengine.Config,
	logger *slog.Logger,
) error {
	periodic := &syncengine.PeriodicSource{Interval: interval}
	engine, err := syncengine.NewEngine(q, client, []syncengine.Source{periodic}, engineConfig, logger)
	if err != nil {
		return err
	}

	// Drain immediately so a freshly captured backlog does not wait a
	// full interval.
	if err := engine.DrainOnce(ctx); err != nil {
		logger.Warn("initial drain failed", "error", err)
	}

	fmt.Printf("Watching the queue; syncing every %s. Ctrl-C to stop.\n", interval)
	engine.Start(ctx)
	<-ctx.Done()
	engine.Stop()
	return nil
}

func (c *syncCommander) report(ctx context.Context, q *queue.Queue, attempted int) error {
	remaining, err := q.ListPending(ctx)
	if err != nil {
		return err
	}
	failed, err := q.ListFailed(ctx)
	if err != nil {
		return err
	}
	removed, err := q.RemoveCompleted(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Synced %d of %d record(s).\n", removed, attempted)
	if len(failed) > 0 {
		fmt.Printf("%d record(s) failed; see 'memories status' and 'memories retry'.\n", len(failed))
	}
	if len(remaining) > 0 {
		fmt.Printf("%d record(s) still pending.\n", len(remaining))
	}
	return nil
}
