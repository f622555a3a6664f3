package parser

import (
	"regexp"
	"strings"
)

// entityPattern matches the entity references the strict decoder accepts
var entityPattern = regexp.MustCompile(`^&(?:lt|gt|amp|quot|apos|#[0-9]+|#[xX][0-9a-fA-F]+);`)

var markupEscaper = strings.NewReplacer("<", "&lt;", ">", "&gt;")

// escapeMarkup escapes every markup character left in the masked text.
// Placeholders contain none of them and pass through untouched.
func escapeMarkup(text string) string {
	return markupEscaper.Replace(escapeAmpersands(text))
}

// escapeAmpersands escapes each '&' that does not start a valid entity
// reference
func escapeAmpersands(s string) string {
	if !strings.Contains(s, "&") {
		return s
	}

	var sb strings.Builder
	sb.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '&' && !entityPattern.MatchString(s[i:]) {
			sb.WriteString("&amp;")
			continue
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
