package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/skytap/internal/config"
	"github.com/ppiankov/skytap/internal/fetcher"
	"github.com/ppiankov/skytap/internal/privacy"
	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/sink"
	"github.com/ppiankov/skytap/internal/source"
	"github.com/ppiankov/skytap/internal/store"
	"github.com/ppiankov/skytap/internal/store/postgres"
)

// backend is the storage surface shared by the SQLite and Postgres stores.
type backend interface {
	sink.Sink
	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, createdAt string) error
	DeleteCursor(ctx context.Context) error
	Recent(ctx context.Context, topic string, limit int) ([]store.StoredRecord, error)
	Stats(ctx context.Context, topic string) (store.Stats, error)
	PruneOld(ctx context.Context, retainDays int) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

func openBackend(ctx context.Context, cfg *config.Config) (backend, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		db, err := postgres.Open(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return db, nil
	default:
		db, err := store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
		return db, nil
	}
}

func storageLabel(cfg *config.Config) string {
	if cfg.Storage.Driver == "postgres" {
		return "postgres ($" + cfg.Storage.DSNEnv + ")"
	}
	return "sqlite " + cfg.Storage.Path
}

// fetcherOptions maps config, where an explicit 0 disables the initial
// delay, the page cap or pacing, onto the fetcher's sentinels.
func fetcherOptions(cfg *config.Config, logger *slog.Logger) fetcher.Options {
	b := cfg.Bluesky
	opts := fetcher.Options{
		Credential:      source.Credential{Identifier: b.Identity, Password: b.Password},
		SearchTerm:      b.SearchTerm,
		PollInterval:    b.PollInterval.Duration,
		InitialDelay:    b.InitialDelay.Duration,
		RefreshInterval: b.RefreshInterval.Duration,
		RequestTimeout:  b.RequestTimeout.Duration,
		APIURL:          b.APIURL,
		PageSize:        b.PageSize,
		MaxPages:        *b.MaxPages,
		RateLimit:       *b.RateLimit,
		Logger:          logger,
	}
	if opts.InitialDelay == 0 {
		opts.InitialDelay = fetcher.NoInitialDelay
	}
	if opts.MaxPages == 0 {
		opts.MaxPages = fetcher.Unlimited
	}
	if opts.RateLimit == 0 {
		opts.RateLimit = fetcher.Unlimited
	}
	return opts
}

func recordFactory(cfg *config.Config) (*record.Factory, error) {
	var redactor *privacy.Redactor
	if cfg.Privacy.Redact.Enabled {
		r, err := privacy.New(cfg.Privacy.Redact.Patterns)
		if err != nil {
			return nil, fmt.Errorf("compile redact patterns: %w", err)
		}
		redactor = r
	}
	return record.NewFactory(cfg.Output.Topic, redactor), nil
}
