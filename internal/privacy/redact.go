// Package privacy masks configured patterns in post text before it leaves
// the connector.
package privacy

import (
	"fmt"
	"regexp"
)

const placeholder = "[REDACTED]"

// Redactor replaces every match of its patterns with [REDACTED]. A nil
// Redactor leaves text unchanged.
type Redactor struct {
	patterns []*regexp.Regexp
}

// New compiles patterns. An empty list yields a Redactor that changes
// nothing.
func New(patterns []string) (*Redactor, error) {
	compiled, err := Compile(patterns)
	if err != nil {
		return nil, err
	}
	return &Redactor{patterns: compiled}, nil
}

// Compile compiles regex pattern strings, failing on the first invalid one.
func Compile(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for i, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("redact pattern %d (%q): %w", i, p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// Redact returns text with all matches masked and the number of matches.
func (r *Redactor) Redact(text string) (string, int) {
	if r == nil {
		return text, 0
	}
	n := 0
	for _, re := range r.patterns {
		n += len(re.FindAllStringIndex(text, -1))
		text = re.ReplaceAllLiteralString(text, placeholder)
	}
	return text, n
}

// Len returns the number of patterns.
func (r *Redactor) Len() int {
	if r == nil {
		return 0
	}
	return len(r.patterns)
}
