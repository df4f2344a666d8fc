package sink

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/skytap/internal/record"
)

type jsonLine struct {
	Topic     string            `json:"topic"`
	Partition map[string]any    `json:"partition"`
	Offset    map[string]string `json:"offset"`
	Timestamp string            `json:"timestamp"`
	Value     record.Status     `json:"value"`
}

// JSONLines writes one JSON object per record.
type JSONLines struct{}

// NewJSONLines creates a JSON lines formatter.
func NewJSONLines() *JSONLines {
	return &JSONLines{}
}

// Format writes each record of batch as a single line.
func (f *JSONLines) Format(w io.Writer, batch Batch) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, r := range batch.Records {
		line := jsonLine{
			Topic:     r.Topic,
			Partition: r.Partition,
			Offset:    r.Offset,
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
			Value:     r.Value,
		}
		if err := enc.Encode(line); err != nil {
			return err
		}
	}
	return nil
}
