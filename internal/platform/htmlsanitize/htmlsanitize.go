// Package htmlsanitize strips markup from user-written board text.
package htmlsanitize

import (
	"html"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer removes every HTML element and attribute. Board text is served
// as JSON, so the kept text is returned unescaped.
type Sanitizer struct {
	policy *bluemonday.Policy
}

func New() *Sanitizer {
	return &Sanitizer{policy: bluemonday.StrictPolicy()}
}

func (s *Sanitizer) Sanitize(value string) string {
	if value == "" {
		return ""
	}
	return html.UnescapeString(s.policy.Sanitize(value))
}
