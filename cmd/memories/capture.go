package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nine4-team/memories-sub004/internal/client/queue"
)

type captureCommander struct {
	kind   string
	text   string
	audio  string
	media  []string
	tags   []string
	locale string
}

func newCaptureCmd() *cobra.Command {
	cmder := &captureCommander{}

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Record a memory into the local queue",
		Long: `Capture records a memory durably on-device and returns immediately.
The record is uploaded by the next sync, so capture works offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.Context())
		},
	}

	cmd.Flags().StringVarP(&cmder.kind, "kind", "k", queue.KindMoment, "Memory kind (moment, story, memento)")
	cmd.Flags().StringVarP(&cmder.text, "text", "t", "", "The memory text (required)")
	cmd.Flags().StringVar(&cmder.audio, "audio", "", "Path to an audio recording")
	cmd.Flags().StringArrayVar(&cmder.media, "media", nil, "Path to a photo or video (repeatable, order preserved)")
	cmd.Flags().StringArrayVar(&cmder.tags, "tag", nil, "Tag for the memory (repeatable)")
	cmd.Flags().StringVar(&cmder.locale, "locale", "", "BCP 47 locale of the text")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func (c *captureCommander) run(ctx context.Context) error {
	// A story without its recording can never sync, so reject it at
	// capture instead of leaving a doomed record in the queue.
	if c.kind == queue.KindStory && c.audio == "" {
		return errors.New("a story needs its recording: provide --audio")
	}

	logger := newLogger()

	_, q, err := openQueue(logger)
	if err != nil {
		return err
	}
	defer func() { _ = q.Close() }()

	memory := &queue.QueuedMemory{
		LocalID:    uuid.New().String(),
		Kind:       c.kind,
		Text:       c.text,
		AudioPath:  c.audio,
		MediaPaths: c.media,
		Tags:       c.tags,
		Locale:     c.locale,
		CapturedAt: time.Now().UTC(),
	}

	if err := q.Enqueue(ctx, memory); err != nil {
		return fmt.Errorf("failed to capture memory: %w", err)
	}

	fmt.Printf("Captured %s %s\n", c.kind, memory.LocalID)
	fmt.Println("Run 'memories sync' to upload, or leave it for the background sync.")
	return nil
}
