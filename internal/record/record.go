// Package record maps fetched posts to the records the connector emits.
package record

import (
	"fmt"
	"time"

	"github.com/ppiankov/skytap/internal/privacy"
	"github.com/ppiankov/skytap/internal/source"
)

// OffsetField is the cursor key under which the createdAt of a record is
// reported.
const OffsetField = "createdAt"

// DefaultTopic is used when no topic is configured.
const DefaultTopic = "bluesky"

// Record is one emitted post with its cursor.
type Record struct {
	Topic string `json:"topic"`
	// Partition is always nil: the connector keeps a single cursor.
	Partition map[string]any    `json:"partition"`
	Offset    map[string]string `json:"offset"`
	Key       []byte            `json:"key"`
	Value     Status            `json:"value"`
	Timestamp time.Time         `json:"timestamp"`
}

// Status is the record value.
type Status struct {
	ID        StatusID  `json:"id"`
	Text      string    `json:"text"`
	Langs     []string  `json:"langs"`
	CreatedAt time.Time `json:"createdAt"`
	Author    Author    `json:"author"`
}

type StatusID struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

type Author struct {
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName,omitempty"`
	Avatar      string `json:"avatar,omitempty"`
}

// Cursor returns the createdAt the record was offset at.
func (r Record) Cursor() string {
	return r.Offset[OffsetField]
}

// Factory builds records for one topic.
type Factory struct {
	topic    string
	redactor *privacy.Redactor
}

// NewFactory returns a factory for topic. redactor may be nil.
func NewFactory(topic string, redactor *privacy.Redactor) *Factory {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Factory{topic: topic, redactor: redactor}
}

// Topic returns the destination topic.
func (f *Factory) Topic() string {
	return f.topic
}

// Create maps post to a record. It fails when createdAt cannot be parsed.
func (f *Factory) Create(post source.Post) (Record, error) {
	at, err := source.ParseTimestamp(post.CreatedAt)
	if err != nil {
		return Record{}, fmt.Errorf("record %s: parse createdAt: %w", post.URI, err)
	}

	text, _ := f.redactor.Redact(post.Text)
	langs := post.Langs
	if langs == nil {
		langs = []string{}
	}

	return Record{
		Topic:     f.topic,
		Partition: nil,
		Offset:    map[string]string{OffsetField: post.CreatedAt},
		Key:       nil,
		Value: Status{
			ID:        StatusID{URI: post.URI, CID: post.CID},
			Text:      text,
			Langs:     langs,
			CreatedAt: at,
			Author: Author{
				Handle:      post.AuthorHandle,
				DisplayName: post.AuthorDisplayName,
				Avatar:      post.AuthorAvatar,
			},
		},
		Timestamp: at,
	}, nil
}
