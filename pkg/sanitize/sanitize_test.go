package sanitize

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPlainTextStripsMarkup(t *testing.T) {
	input := `<script>alert("x")</script>Hi <b>chat</b>   & friends`

	assert.Equal(t, "Hi chat & friends", PlainText(input))
}

func TestBioTruncates(t *testing.T) {
	bio := Bio(strings.Repeat("ä", 20), 5)

	assert.Equal(t, "äääää", bio)
}

func TestCallMessageKeepsNewlines(t *testing.T) {
	assert.Equal(t, "line one\nline two", CallMessage("line one\nline two\x00", 100))
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "cool_streamer", Slug("  Cool_Streamer "))
	assert.Equal(t, "abc", Slug("__a.b!c--"))
}

func TestValidSlug(t *testing.T) {
	assert.True(t, ValidSlug("shroud"))
	assert.True(t, ValidSlug("a_b-c"))
	assert.False(t, ValidSlug("ab"))
	assert.False(t, ValidSlug("-abc"))
	assert.False(t, ValidSlug("Upper"))
	assert.False(t, ValidSlug(strings.Repeat("a", 41)))
}
