package htmlsanitize_test

import (
	"testing"

	"rudefriend/internal/platform/htmlsanitize"

	"github.com/stretchr/testify/assert"
)

func TestSanitize(t *testing.T) {
	s := htmlsanitize.New()

	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "plain text", input: "Mid or feed", want: "Mid or feed"},
		{name: "script removed", input: "gg<script>alert('x')</script>", want: "gg"},
		{name: "tags stripped", input: "<b>Bold</b> call", want: "Bold call"},
		{name: "link text kept", input: `<a href="javascript:alert(1)">click</a>`, want: "click"},
		{name: "ampersand kept", input: "Tom & Jerry", want: "Tom & Jerry"},
		{name: "apostrophe kept", input: "don't int", want: "don't int"},
		{name: "less than kept", input: "a < b", want: "a < b"},
		{name: "tags stripped around entities", input: "<i>Tom & Jerry</i>", want: "Tom & Jerry"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.Sanitize(tc.input))
		})
	}
}

func TestSanitizeIsStableAcrossSaves(t *testing.T) {
	s := htmlsanitize.New()
	once := s.Sanitize("Tom & Jerry don't")
	assert.Equal(t, once, s.Sanitize(once))
}
