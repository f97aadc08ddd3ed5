package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/flemzord/seline/internal/conversation"
	"github.com/flemzord/seline/internal/core"
	"github.com/flemzord/seline/pkg/app"
	"github.com/spf13/cobra"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear a user's conversation history",
	}

	var limit int
	show := &cobra.Command{
		Use:   "show <user-id>",
		Short: "Print the most recent turns of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store conversation.Store) error {
				turns, err := store.Recent(ctx, args[0], limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(turns) == 0 {
					fmt.Fprintln(out, "no history")
					return nil
				}
				for _, t := range turns {
					fmt.Fprintf(out, "%s  %-9s  %-22s  %s\n",
						t.Timestamp.Format(time.DateTime), t.Sender, t.Route, t.Message)
				}
				return nil
			})
		},
	}
	show.Flags().IntVarP(&limit, "limit", "n", 20, "Number of turns to print")

	clearCmd := &cobra.Command{
		Use:   "clear <user-id>",
		Short: "Delete every turn of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store conversation.Store) error {
				if err := store.Clear(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "history cleared for %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(show, clearCmd)
	return cmd
}

// withStore opens the configured store, runs fn and closes the store.
func withStore(cmd *cobra.Command, fn func(context.Context, conversation.Store) error) error {
	cfg, _, err := app.LoadConfig(configPath(cmd))
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	store, err := app.OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		return err
	}
	if c, ok := store.(core.Closer); ok {
		defer func() { _ = c.Close() }()
	}
	return fn(ctx, store)
}
