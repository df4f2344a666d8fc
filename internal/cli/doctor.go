package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/skytap/internal/config"
	"github.com/ppiankov/skytap/internal/source"
)

var doctorOffline bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, storage and Bluesky credentials",
	RunE:  doctorAction,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorOffline, "offline", false, "skip the live login check")
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	if !runDoctor(commandContext(cmd), os.Stdout, configDir, !doctorOffline) {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

func runDoctor(ctx context.Context, w io.Writer, dir string, online bool) bool {
	ok := true

	// Config dir
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		printCheck(w, false, "config directory %s", dir)
		return false
	}
	printCheck(w, true, "config directory %s", dir)

	// Config file
	cfg, err := config.Load(dir)
	if err != nil {
		printCheck(w, false, "config.yaml: %v", err)
		return false
	}
	printCheck(w, true, "config.yaml (search %q, poll every %s, sink %s)",
		cfg.Bluesky.SearchTerm, cfg.Bluesky.PollInterval.Duration, cfg.Output.Sink)
	printCheck(w, true, "app password for %s from %s", cfg.Bluesky.Identity, cfg.Bluesky.PasswordSource)

	// Storage
	db, err := openBackend(ctx, cfg)
	if err != nil {
		printCheck(w, false, "storage: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		if err := db.Ping(ctx); err != nil {
			printCheck(w, false, "storage %s: %v", storageLabel(cfg), err)
			ok = false
		} else {
			printCheck(w, true, "storage %s", storageLabel(cfg))
			if cursor, err := db.GetCursor(ctx); err == nil {
				printInfo(w, "cursor %s", cursor)
			}
		}
	}

	// Live login
	if online {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		session := source.NewSession(
			source.Credential{Identifier: cfg.Bluesky.Identity, Password: cfg.Bluesky.Password},
			source.WithBaseURL(cfg.Bluesky.APIURL),
			source.WithTimeout(cfg.Bluesky.RequestTimeout.Duration),
		)
		if err := session.Login(ctx); err != nil {
			printCheck(w, false, "login %s: %v", cfg.Bluesky.APIURL, err)
			ok = false
		} else {
			session.Logout()
			printCheck(w, true, "login %s as %s", cfg.Bluesky.APIURL, cfg.Bluesky.Identity)
		}
	}

	return ok
}

func printCheck(w io.Writer, pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Fprintf(w, "[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "[INFO] %s\n", fmt.Sprintf(format, args...))
}
