package parser

import "strings"

const (
	fenceMarker  = "```"
	inlineMarker = "`"
)

// maskVerbatim replaces code spans with placeholders so that markup quoted in
// prose or code samples is never taken for an action. Fenced spans are masked
// first; inline spans are searched only in what is left.
func maskVerbatim(text string) (string, *placeholders) {
	spans := newPlaceholders('V')
	text = maskSpans(text, fenceMarker, spans, true)
	text = maskSpans(text, inlineMarker, spans, false)
	return text, spans
}

// maskSpans masks marker-delimited spans left to right. Each span is closed
// by the next unescaped marker. Inline spans must close on the same line and
// their marker only counts when it stands alone, not inside a longer run.
func maskSpans(text, marker string, spans *placeholders, multiline bool) string {
	var sb strings.Builder

	for {
		start := indexUnescaped(text, marker, 0, !multiline)
		if start < 0 {
			break
		}
		end := indexUnescaped(text, marker, start+len(marker), !multiline)
		if end < 0 {
			break
		}

		if !multiline && strings.Contains(text[start:end], "\n") {
			sb.WriteString(text[:start+len(marker)])
			text = text[start+len(marker):]
			continue
		}

		sb.WriteString(text[:start])
		sb.WriteString(spans.add(text[start : end+len(marker)]))
		text = text[end+len(marker):]
	}

	sb.WriteString(text)
	return sb.String()
}

// indexUnescaped returns the index of the first marker at or after from that
// is not preceded by a backslash, or -1. With lone set, a marker repeated
// back to back is skipped as a whole run.
func indexUnescaped(text, marker string, from int, lone bool) int {
	for i := from; i <= len(text)-len(marker); {
		j := strings.Index(text[i:], marker)
		if j < 0 {
			return -1
		}
		j += i
		if j > 0 && text[j-1] == '\\' {
			i = j + 1
			continue
		}
		if lone {
			k := j + len(marker)
			for strings.HasPrefix(text[k:], marker) {
				k += len(marker)
			}
			if k-j > len(marker) {
				i = k
				continue
			}
		}
		return j
	}
	return -1
}
