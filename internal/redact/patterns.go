package redact

import "regexp"

// Pattern defines a credential shape that must never leave the process.
type Pattern struct {
	Name  string
	Regex *regexp.Regexp
}

// DefaultPatterns returns the built-in credential patterns. Order matters: more
// specific shapes come before the generic ones that would also match them.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "Anthropic API Key",
			Regex: regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{20,}`),
		},
		{
			Name:  "OpenAI API Key",
			Regex: regexp.MustCompile(`sk-(?:proj-)?[A-Za-z0-9_\-]{20,}`),
		},
		{
			Name:  "Stripe Secret Key",
			Regex: regexp.MustCompile(`sk_(?:live|test)_[A-Za-z0-9]{16,}`),
		},
		{
			Name:  "Bearer Token",
			Regex: regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-\.=]{16,}`),
		},
		{
			Name:  "JWT Token",
			Regex: regexp.MustCompile(`eyJ[A-Za-z0-9\-_]+\.eyJ[A-Za-z0-9\-_]+\.[A-Za-z0-9\-_]+`),
		},
		{
			Name:  "Connection String",
			Regex: regexp.MustCompile(`(?:postgres|postgresql|redis|rediss)://[^\s"']+`),
		},
	}
}
