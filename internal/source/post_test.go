package source

import (
	"errors"
	"testing"
	"time"
)

func TestParsePost(t *testing.T) {
	raw := []byte(`{
		"author": {"handle": "alice.bsky.social", "displayName": "Alice", "avatar": "https://cdn.bsky.app/a.jpg"},
		"uri": "at://did:plc:alice/app.bsky.feed.post/3k",
		"cid": "bafyrei",
		"record": {"createdAt": "2024-05-01T10:00:00.123Z", "text": "hello", "langs": ["en", "de"]}
	}`)

	p, err := ParsePost(raw)
	if err != nil {
		t.Fatalf("ParsePost: %v", err)
	}
	if p.AuthorHandle != "alice.bsky.social" || p.AuthorDisplayName != "Alice" || p.AuthorAvatar != "https://cdn.bsky.app/a.jpg" {
		t.Errorf("author = %q %q %q", p.AuthorHandle, p.AuthorDisplayName, p.AuthorAvatar)
	}
	if p.URI != "at://did:plc:alice/app.bsky.feed.post/3k" || p.CID != "bafyrei" {
		t.Errorf("id = %q %q", p.URI, p.CID)
	}
	if p.CreatedAt != "2024-05-01T10:00:00.123Z" || p.Text != "hello" {
		t.Errorf("record = %q %q", p.CreatedAt, p.Text)
	}
	if len(p.Langs) != 2 || p.Langs[0] != "en" || p.Langs[1] != "de" {
		t.Errorf("langs = %v", p.Langs)
	}
}

func TestParsePost_OptionalFields(t *testing.T) {
	raw := []byte(`{
		"author": {"handle": "bob.bsky.social"},
		"uri": "at://x", "cid": "c",
		"record": {"createdAt": "2024-05-01T10:00:00Z", "text": ""}
	}`)

	p, err := ParsePost(raw)
	if err != nil {
		t.Fatalf("ParsePost: %v", err)
	}
	if p.AuthorDisplayName != "" || p.AuthorAvatar != "" {
		t.Errorf("optional author fields = %q %q, want empty", p.AuthorDisplayName, p.AuthorAvatar)
	}
	if p.Langs == nil || len(p.Langs) != 0 {
		t.Errorf("langs = %#v, want empty non-nil", p.Langs)
	}
}

func TestParsePost_Invalid(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"malformed", `{"author":`},
		{"no author", `{"uri":"u","cid":"c","record":{"createdAt":"2024-05-01T10:00:00Z","text":"t"}}`},
		{"no handle", `{"author":{},"uri":"u","cid":"c","record":{"createdAt":"2024-05-01T10:00:00Z","text":"t"}}`},
		{"no uri", `{"author":{"handle":"h"},"cid":"c","record":{"createdAt":"2024-05-01T10:00:00Z","text":"t"}}`},
		{"no cid", `{"author":{"handle":"h"},"uri":"u","record":{"createdAt":"2024-05-01T10:00:00Z","text":"t"}}`},
		{"no record", `{"author":{"handle":"h"},"uri":"u","cid":"c"}`},
		{"no createdAt", `{"author":{"handle":"h"},"uri":"u","cid":"c","record":{"text":"t"}}`},
		{"bad createdAt", `{"author":{"handle":"h"},"uri":"u","cid":"c","record":{"createdAt":"yesterday","text":"t"}}`},
		{"no text", `{"author":{"handle":"h"},"uri":"u","cid":"c","record":{"createdAt":"2024-05-01T10:00:00Z"}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePost([]byte(tt.raw))
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("err = %v, want *ParseError", err)
			}
		})
	}
}

func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))
	if got := FormatTimestamp(at); got != "2024-05-01T10:00:00.123Z" {
		t.Errorf("FormatTimestamp = %q", got)
	}
}
