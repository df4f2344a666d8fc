package source

import (
	"encoding/json"
	"time"
)

type searchResponse struct {
	Posts []json.RawMessage `json:"posts"`
}

// wirePost mirrors app.bsky.feed.defs#postView. Required fields are pointers
// so that a missing field can be told apart from an empty one.
type wirePost struct {
	Author *struct {
		Handle      *string `json:"handle"`
		DisplayName string  `json:"displayName"`
		Avatar      string  `json:"avatar"`
	} `json:"author"`
	URI    *string `json:"uri"`
	CID    *string `json:"cid"`
	Record *struct {
		CreatedAt *string  `json:"createdAt"`
		Text      *string  `json:"text"`
		Langs     []string `json:"langs"`
	} `json:"record"`
}

// ParsePost decodes one entry of a searchPosts response. It fails with a
// *ParseError when the entry is malformed or a required field is missing.
func ParsePost(raw json.RawMessage) (Post, error) {
	var wp wirePost
	if err := json.Unmarshal(raw, &wp); err != nil {
		return Post{}, &ParseError{Reason: "malformed post", Err: err}
	}

	switch {
	case wp.Author == nil:
		return Post{}, &ParseError{Reason: "missing author"}
	case wp.Author.Handle == nil:
		return Post{}, &ParseError{Reason: "missing author.handle"}
	case wp.URI == nil:
		return Post{}, &ParseError{Reason: "missing uri"}
	case wp.CID == nil:
		return Post{}, &ParseError{Reason: "missing cid"}
	case wp.Record == nil:
		return Post{}, &ParseError{Reason: "missing record"}
	case wp.Record.CreatedAt == nil:
		return Post{}, &ParseError{Reason: "missing record.createdAt"}
	case wp.Record.Text == nil:
		return Post{}, &ParseError{Reason: "missing record.text"}
	}

	if _, err := ParseTimestamp(*wp.Record.CreatedAt); err != nil {
		return Post{}, &ParseError{Reason: "invalid record.createdAt", Err: err}
	}

	langs := wp.Record.Langs
	if langs == nil {
		langs = []string{}
	}

	return Post{
		AuthorHandle:      *wp.Author.Handle,
		AuthorDisplayName: wp.Author.DisplayName,
		AuthorAvatar:      wp.Author.Avatar,
		URI:               *wp.URI,
		CID:               *wp.CID,
		CreatedAt:         *wp.Record.CreatedAt,
		Text:              *wp.Record.Text,
		Langs:             langs,
	}, nil
}

// ParseTimestamp parses an ISO-8601 timestamp as used in createdAt.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

// FormatTimestamp renders t in UTC with millisecond precision, the format
// the search endpoint accepts for since/until.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}
