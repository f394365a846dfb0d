package transcript

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateChars(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     string
	}{
		{"empty", "", 5, ""},
		{"ASCII under limit", "hello", 10, "hello"},
		{"ASCII exact", "hello", 5, "hello"},
		{"ASCII over", "hello world", 5, "hello"},
		{"Unicode", "привет", 3, "при"},
		{"zero limit", "hello", 0, ""},
		{"negative limit", "hello", -1, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, truncateChars(tt.text, tt.maxChars))
		})
	}
}

func TestRenderParameters(t *testing.T) {
	t.Parallel()
	got, err := renderParameters(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", got)

	got, err = renderParameters(map[string]any{"type": "object", "required": []any{"city"}})
	require.NoError(t, err)
	assert.Equal(t, `{"required":["city"],"type":"object"}`, got)

	_, err = renderParameters(map[string]any{"bad": math.NaN()})
	require.Error(t, err)
}
