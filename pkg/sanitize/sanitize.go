package sanitize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var (
	strictPolicy = bluemonday.StrictPolicy()

	slugInvalidChars = regexp.MustCompile(`[^a-z0-9_-]+`)
	slugFormat       = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{2,39}$`)
	repeatedSpaces   = regexp.MustCompile(`[ \t]{2,}`)
)

// PlainText strips every HTML tag and control character. Entities produced
// by the policy are unescaped again because the result is rendered as text
// by the client, not as markup.
func PlainText(input string) string {
	cleaned := strictPolicy.Sanitize(input)
	cleaned = html.UnescapeString(cleaned)
	cleaned = StripControlCharacters(cleaned)
	cleaned = repeatedSpaces.ReplaceAllString(cleaned, " ")
	return strings.TrimSpace(cleaned)
}

// Bio sanitizes a streamer bio and truncates it to maxLen runes
func Bio(input string, maxLen int) string {
	return truncate(PlainText(input), maxLen)
}

// CallMessage sanitizes the note a viewer attaches to a call request
func CallMessage(input string, maxLen int) string {
	return truncate(PlainText(input), maxLen)
}

// Slug derives a URL slug from a Twitch login
func Slug(login string) string {
	slug := strings.ToLower(strings.TrimSpace(login))
	slug = slugInvalidChars.ReplaceAllString(slug, "")
	return strings.Trim(slug, "-_")
}

// ValidSlug reports whether slug is 3-40 chars of [a-z0-9_-], starting alphanumeric
func ValidSlug(slug string) bool {
	return slugFormat.MatchString(slug)
}

// StripControlCharacters removes control characters except newlines
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if r == '\n' || !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

func truncate(input string, maxLen int) string {
	if maxLen <= 0 {
		return input
	}
	runes := []rune(input)
	if len(runes) <= maxLen {
		return input
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
