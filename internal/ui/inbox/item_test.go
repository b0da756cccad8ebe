package inbox

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short passes through", "alice@example.com", 28, "alice@example.com"},
		{"exact length passes through", strings.Repeat("a", 28), 28, strings.Repeat("a", 28)},
		{"long gets ellipsis", strings.Repeat("a", 40), 28, strings.Repeat("a", 27) + "…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.in, tt.max))
		})
	}
}

func TestTruncateKeepsMultiByteNamesValid(t *testing.T) {
	from := "Jürgen Müller (München) <jürgen.müller@example.de>"

	got := truncate(from, 28)

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, 28, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, "…"))
}
