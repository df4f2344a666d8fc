package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
	"github.com/ppiankov/skytap/internal/store"
)

var cursorCmd = &cobra.Command{
	Use:   "cursor",
	Short: "Inspect or move the committed createdAt cursor",
}

var cursorShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the committed cursor",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBackend(cmd, func(ctx context.Context, db backend) error {
			return showCursor(ctx, db, os.Stdout)
		})
	},
}

var cursorSetCmd = &cobra.Command{
	Use:   "set <createdAt>",
	Short: "Replace the cursor; the next run searches after it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBackend(cmd, func(ctx context.Context, db backend) error {
			if err := db.SetCursor(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("cursor set to %s\n", args[0])
			return nil
		})
	},
}

var cursorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget the cursor; the next run starts without a lower bound",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withBackend(cmd, func(ctx context.Context, db backend) error {
			if err := db.DeleteCursor(ctx); err != nil {
				return err
			}
			fmt.Println("cursor reset")
			return nil
		})
	},
}

func init() {
	cursorCmd.AddCommand(cursorShowCmd, cursorSetCmd, cursorResetCmd)
	rootCmd.AddCommand(cursorCmd)
}

func showCursor(ctx context.Context, db backend, w io.Writer) error {
	cursor, err := db.GetCursor(ctx)
	if errors.Is(err, store.ErrNotFound) {
		_, err = fmt.Fprintln(w, "no cursor committed")
		return err
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, cursor)
	return err
}

// withBackend loads the storage config, opens storage and runs fn against
// it. Bluesky credentials are not needed.
func withBackend(cmd *cobra.Command, fn func(context.Context, backend) error) error {
	cfg, err := config.LoadStorage(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ctx := commandContext(cmd)
	db, err := openBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()
	return fn(ctx, db)
}
