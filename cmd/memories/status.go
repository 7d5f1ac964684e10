package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nine4-team/memories-sub004/internal/client/queue"
)

type statusCommander struct {
	verbose bool
}

func newStatusCmd() *cobra.Command {
	cmder := &statusCommander{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the capture queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().BoolVarP(&cmder.verbose, "verbose", "v", false, "Show each record")

	return cmd
}

func (c *statusCommander) run(ctx context.Context) error {
	logger := newLogger()

	_, q, err := openQueue(logger)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	all, err := q.ListAll(ctx)
	if err != nil {
		return err
	}
	if len(all) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	counts := map[queue.SyncStatus]int{}
	for _, memory := range all {
		counts[memory.SyncStatus]++
	}

	fmt.Printf("%d record(s): %d queued, %d syncing, %d failed, %d completed\n",
		len(all),
		counts[queue.StatusQueued],
		counts[queue.StatusSyncing],
		counts[queue.StatusFailed],
		counts[queue.StatusCompleted])

	if !c.verbose {
		if counts[queue.StatusFailed] > 0 {
			fmt.Println("Run 'memories status -v' for details, 'memories retry' to requeue failures.")
		}
		return nil
	}

	for _, memory := range all {
		line := fmt.Sprintf("%s  %-7s  %-9s  %s",
			memory.CapturedAt.Local().Format("2006-01-02 15:04"),
			memory.Kind,
			memory.SyncStatus,
			memory.LocalID)
		if memory.LastError != "" {
			line += fmt.Sprintf("  (%s)", memory.LastError)
		}
		fmt.Println(line)
	}
	return nil
}
