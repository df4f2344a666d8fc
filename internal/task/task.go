// Package task hosts the fetcher: it restores the cursor, turns fetched
// posts into records, hands them to a sink and commits the cursor.
package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ppiankov/skytap/internal/fetcher"
	"github.com/ppiankov/skytap/internal/observability"
	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/sink"
	"github.com/ppiankov/skytap/internal/source"
	"github.com/ppiankov/skytap/internal/store"
)

// CursorStore persists the createdAt of the newest emitted record.
type CursorStore interface {
	GetCursor(ctx context.Context) (string, error)
	SetCursor(ctx context.Context, createdAt string) error
}

// PostSource produces buffered posts. *fetcher.Fetcher implements it.
type PostSource interface {
	Start(ctx context.Context) error
	Posts() ([]source.Post, error)
	Stop()
}

// Options configures a Task.
type Options struct {
	Cursors CursorStore
	Sink    sink.Sink
	Factory *record.Factory
	Fetcher fetcher.Options
	Logger  *slog.Logger

	// NewSource builds the post source. Defaults to fetcher.New.
	NewSource func(fetcher.Options) (PostSource, error)
}

// Task connects a PostSource to a Sink.
type Task struct {
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	src PostSource
}

// New returns a stopped task.
func New(opts Options) *Task {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Factory == nil {
		opts.Factory = record.NewFactory("", nil)
	}
	if opts.NewSource == nil {
		opts.NewSource = func(o fetcher.Options) (PostSource, error) {
			f, err := fetcher.New(o)
			if err != nil {
				return nil, err
			}
			return f, nil
		}
	}
	if opts.Fetcher.Logger == nil {
		opts.Fetcher.Logger = opts.Logger
	}
	return &Task{opts: opts, logger: opts.Logger}
}

// Start restores the cursor and starts fetching. A login failure is
// returned.
func (t *Task) Start(ctx context.Context) error {
	if t.opts.Cursors == nil || t.opts.Sink == nil {
		return errors.New("task: cursor store and sink are required")
	}

	cursor, err := t.restoreCursor(ctx)
	if err != nil {
		return err
	}

	fo := t.opts.Fetcher
	fo.Cursor = cursor
	src, err := t.opts.NewSource(fo)
	if err != nil {
		return fmt.Errorf("task: build fetcher: %w", err)
	}
	if err := src.Start(ctx); err != nil {
		return fmt.Errorf("task: start fetcher: %w", err)
	}

	t.mu.Lock()
	t.src = src
	t.mu.Unlock()

	t.logger.Info("task started", "topic", t.opts.Factory.Topic(), "cursor", cursor)
	return nil
}

func (t *Task) restoreCursor(ctx context.Context) (string, error) {
	cursor, err := t.opts.Cursors.GetCursor(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("task: read cursor: %w", err)
	}
	if err := store.ValidateCursor(cursor); err != nil {
		t.logger.Warn("ignoring unreadable cursor", "cursor", cursor, "error", err)
		return "", nil
	}
	return cursor, nil
}

// Poll drains the fetcher, emits the posts as records and commits the
// cursor of the newest one. It returns the number of records emitted.
func (t *Task) Poll(ctx context.Context) (int, error) {
	t.mu.Lock()
	src := t.src
	t.mu.Unlock()
	if src == nil {
		return 0, errors.New("task: not started")
	}

	posts, err := src.Posts()
	if err != nil {
		return 0, fmt.Errorf("task: poll: %w", err)
	}

	records := make([]record.Record, 0, len(posts))
	for _, p := range posts {
		rec, err := t.opts.Factory.Create(p)
		if err != nil {
			t.logger.Warn("skipping post", "uri", p.URI, "error", err)
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return 0, nil
	}

	if err := t.opts.Sink.Emit(ctx, records); err != nil {
		return 0, fmt.Errorf("task: emit: %w", err)
	}
	observability.RecordEmitted(len(records))

	cursor := records[len(records)-1].Cursor()
	if err := t.opts.Cursors.SetCursor(ctx, cursor); err != nil {
		observability.RecordCursorCommit("error")
		return len(records), fmt.Errorf("task: commit cursor: %w", err)
	}
	observability.RecordCursorCommit("ok")

	t.logger.Debug("emitted records", "count", len(records), "cursor", cursor)
	return len(records), nil
}

// Run polls every interval until ctx is done or a poll fails. The fetcher is
// stopped on return.
func (t *Task) Run(ctx context.Context, every time.Duration) error {
	defer t.Stop()
	if every <= 0 {
		every = time.Second
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := t.Poll(ctx); err != nil {
				return err
			}
		}
	}
}

// Stop stops the fetcher. It is safe to call more than once.
func (t *Task) Stop() {
	t.mu.Lock()
	src := t.src
	t.src = nil
	t.mu.Unlock()

	if src != nil {
		src.Stop()
		t.logger.Info("task stopped")
	}
}
