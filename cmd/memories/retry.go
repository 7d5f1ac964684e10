package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nine4-team/memories-sub004/internal/client/queue"
)

type retryCommander struct {
	all bool
}

func newRetryCmd() *cobra.Command {
	cmder := &retryCommander{}

	cmd := &cobra.Command{
		Use:   "retry [local-id]",
		Short: "Requeue failed records for the next sync",
		Long: `Retry moves a failed record back to queued with a fresh retry budget.
Already-uploaded parts are not re-sent.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.Context(), args)
		},
	}

	cmd.Flags().BoolVarP(&cmder.all, "all", "a", false, "Requeue every failed record")

	return cmd
}

func (c *retryCommander) run(ctx context.Context, args []string) error {
	logger := newLogger()

	_, q, err := openQueue(logger)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	if c.all {
		if len(args) > 0 {
			return errors.New("cannot combine --all with a local ID")
		}
		return c.retryAll(ctx, q)
	}

	if len(args) == 0 {
		return errors.New("provide a local ID or use --all")
	}

	if err := q.ResetForRetry(ctx, args[0]); err != nil {
		if errors.Is(err, queue.ErrRecordNotFound) {
			return fmt.Errorf("no failed record with local ID %s", args[0])
		}
		return err
	}
	fmt.Printf("Requeued %s; run 'memories sync' to upload.\n", args[0])
	return nil
}

func (c *retryCommander) retryAll(ctx context.Context, q *queue.Queue) error {
	failed, err := q.ListFailed(ctx)
	if err != nil {
		return err
	}
	if len(failed) == 0 {
		fmt.Println("No failed records.")
		return nil
	}

	requeued := 0
	for _, memory := range failed {
		if err := q.ResetForRetry(ctx, memory.LocalID); err != nil {
			fmt.Printf("Skipping %s: %v\n", memory.LocalID, err)
			continue
		}
		requeued++
	}
	fmt.Printf("Requeued %d record(s); run 'memories sync' to upload.\n", requeued)
	return nil
}
