package pagination

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		page       string
		limit      string
		wantPage   int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", "", "", 1, 20, 0},
		{"explicit", "3", "10", 3, 10, 20},
		{"negative page", "-2", "10", 1, 10, 0},
		{"limit clamped high", "1", "1000", 1, 100, 0},
		{"limit clamped low", "2", "0", 2, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params, err := Parse(tt.page, tt.limit)
			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, params.Page)
			assert.Equal(t, tt.wantLimit, params.Limit)
			assert.Equal(t, tt.wantOffset, params.Offset)
		})
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("abc", "")
	assert.Error(t, err)

	_, err = Parse("", "ten")
	assert.Error(t, err)
}

func TestNewPage(t *testing.T) {
	params := Params{Page: 2, Limit: 10, Offset: 10}

	page := NewPage[string](params, 21, nil)

	assert.Equal(t, 3, page.TotalPages)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
	assert.Equal(t, 0, TotalPages(5, 0))
}
