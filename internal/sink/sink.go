// Package sink renders emitted records for people and pipes.
package sink

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/ppiankov/skytap/internal/record"
)

// Sink receives records in emission order.
type Sink interface {
	Emit(ctx context.Context, records []record.Record) error
}

// Batch is a set of records with the context they were fetched in.
type Batch struct {
	Records   []record.Record
	Term      string // search term, used in headers
	Watermark string // cursor after the batch
}

// Formatter writes a batch to w.
type Formatter interface {
	Format(w io.Writer, batch Batch) error
}

// New returns a formatter by name: "json", "markdown" or "terminal".
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "json", "jsonl":
		return NewJSONLines(), nil
	case "markdown", "md":
		return NewMarkdown(), nil
	case "terminal", "":
		return NewTerminal(color), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json or markdown)", format)
	}
}

// Writer is a Sink that formats every emitted batch onto an io.Writer.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	fmt Formatter
}

// NewWriter returns a Sink writing to w with f.
func NewWriter(w io.Writer, f Formatter) *Writer {
	return &Writer{w: w, fmt: f}
}

func (s *Writer) Emit(_ context.Context, records []record.Record) error {
	if len(records) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fmt.Format(s.w, Batch{Records: records, Watermark: records[len(records)-1].Cursor()})
}
