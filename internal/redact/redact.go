// Package redact scrubs credentials from text that is about to be logged or
// returned in an error.
package redact

import "strings"

const placeholder = "[REDACTED]"

// Redactor replaces credential-shaped substrings and explicitly registered
// secrets with a placeholder.
type Redactor struct {
	patterns []Pattern
	secrets  []string
}

// New creates a redactor with the default patterns. Any non-empty secrets are
// replaced verbatim as well, which covers keys with no recognisable shape.
func New(secrets ...string) *Redactor {
	r := &Redactor{patterns: DefaultPatterns()}
	for _, s := range secrets {
		if s != "" {
			r.secrets = append(r.secrets, s)
		}
	}
	return r
}

// String returns text with every detected credential replaced.
func (r *Redactor) String(text string) string {
	for _, s := range r.secrets {
		text = strings.ReplaceAll(text, s, placeholder)
	}
	for _, p := range r.patterns {
		text = p.Regex.ReplaceAllString(text, placeholder)
	}
	return text
}

// Truncate shortens text to at most n bytes after redaction.
func (r *Redactor) Truncate(text string, n int) string {
	text = r.String(text)
	if n > 0 && len(text) > n {
		return text[:n] + "..."
	}
	return text
}

var std = New()

// String redacts text using the default patterns only.
func String(text string) string {
	return std.String(text)
}
