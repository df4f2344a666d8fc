package privacy

import (
	"testing"
)

func TestCompile_Invalid(t *testing.T) {
	_, err := Compile([]string{`ok`, `[invalid`})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestNew_Empty(t *testing.T) {
	r, err := New(nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("got %d patterns, want 0", r.Len())
	}
	got, n := r.Redact("nothing to hide")
	if got != "nothing to hide" || n != 0 {
		t.Errorf("got %q (%d), want unchanged", got, n)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		text     string
		want     string
		count    int
	}{
		{"single", []string{`(?i)token`}, "My API Token is abc123", "My API [REDACTED] is abc123", 1},
		{"multiple patterns", []string{`(?i)token`, `(?i)secret`}, "Token and Secret values", "[REDACTED] and [REDACTED] values", 2},
		{"repeated match", []string{`(?i)password`}, "password is password", "[REDACTED] is [REDACTED]", 2},
		{"email", []string{`[\w.+-]+@[\w-]+\.[\w.]+`}, "mail me at a.b@example.com", "mail me at [REDACTED]", 1},
		{"dollar sign kept literal", []string{`\$\w+`}, "cost $5", "cost [REDACTED]", 1},
		{"no match", []string{`xyz`}, "hello", "hello", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := New(tt.patterns)
			if err != nil {
				t.Fatalf("new: %v", err)
			}
			got, n := r.Redact(tt.text)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
			if n != tt.count {
				t.Errorf("count = %d, want %d", n, tt.count)
			}
		})
	}
}

func TestRedact_NilRedactor(t *testing.T) {
	var r *Redactor
	got, n := r.Redact("keep me")
	if got != "keep me" || n != 0 {
		t.Errorf("got %q (%d)", got, n)
	}
}
