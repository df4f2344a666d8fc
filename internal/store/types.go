package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/skytap/internal/record"
	"github.com/ppiankov/skytap/internal/source"
)

// ErrNotFound is returned when no cursor has been saved yet.
var ErrNotFound = errors.New("not found")

// StoredRecord is an emitted record as kept in the outbox.
type StoredRecord struct {
	ID           string
	Topic        string
	URI          string
	CID          string
	AuthorHandle string
	Cursor       string // createdAt exactly as received
	CreatedAt    time.Time
	EmittedAt    time.Time
	Value        record.Status
}

// Stats summarizes the outbox for one topic.
type Stats struct {
	Count  int64
	Oldest time.Time // zero when Count is 0
	Newest time.Time
}

// ValidateCursor checks that value can seed a watermark.
func ValidateCursor(value string) error {
	if _, err := source.ParseTimestamp(value); err != nil {
		return fmt.Errorf("invalid cursor %q: %w", value, err)
	}
	return nil
}

// EncodeValue serializes a record value for storage.
func EncodeValue(v record.Status) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record value: %w", err)
	}
	return b, nil
}

// DecodeValue is the inverse of EncodeValue.
func DecodeValue(b []byte) (record.Status, error) {
	var v record.Status
	if err := json.Unmarshal(b, &v); err != nil {
		return record.Status{}, fmt.Errorf("decode record value: %w", err)
	}
	return v, nil
}
