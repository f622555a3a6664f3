package parser

import (
	"encoding/xml"
	"errors"
	"io"
	"regexp"
	"strings"
)

// openTagPattern matches an opening tag: a name followed by zero or more
// single- or double-quoted attributes.
var openTagPattern = regexp.MustCompile(`<([a-zA-Z][a-zA-Z0-9_]*)((?:\s+[a-zA-Z_][a-zA-Z0-9_.\-]*\s*=\s*(?:"[^"]*"|'[^']*'))*)\s*>`)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// maskTags finds tag blocks, checks each one in isolation and masks those
// that are well-formed. A block that fails the check stays ordinary text, so
// a stray bracket cannot break the rest of the document.
func maskTags(text string) (string, *placeholders) {
	tags := newPlaceholders('T')

	var sb strings.Builder
	pos := 0
	for _, loc := range openTagPattern.FindAllStringSubmatchIndex(text, -1) {
		start := loc[0]
		if start < pos {
			continue
		}

		name := text[loc[2]:loc[3]]
		end := closingTagEnd(text, loc[1], name)
		if end < 0 {
			continue
		}

		candidate, ok := verifyCandidate(text[start:end])
		if !ok {
			continue
		}

		sb.WriteString(text[pos:start])
		sb.WriteString(tags.add(candidate))
		pos = end
	}
	sb.WriteString(text[pos:])

	return sb.String(), tags
}

// closingTagEnd returns the end offset of the first closing tag for name at
// or after from, or -1
func closingTagEnd(text string, from int, name string) int {
	closing := "</" + name
	for i := from; i < len(text); {
		j := strings.Index(text[i:], closing)
		if j < 0 {
			return -1
		}

		k := i + j + len(closing)
		for k < len(text) && isSpace(text[k]) {
			k++
		}
		if k < len(text) && text[k] == '>' {
			return k + 1
		}
		i = i + j + len(closing)
	}
	return -1
}

// verifyCandidate returns the form of the block that will be put back into
// the document and whether it parses on its own.
func verifyCandidate(block string) (string, bool) {
	candidate := escapeAmpersands(block)
	if wellFormed(candidate) {
		return candidate, true
	}

	cleaned := controlChars.ReplaceAllString(candidate, "")
	if cleaned != candidate && wellFormed(cleaned) {
		return cleaned, true
	}

	return "", false
}

func wellFormed(fragment string) bool {
	dec := xml.NewDecoder(strings.NewReader(fragment))
	for {
		if _, err := dec.Token(); err != nil {
			return errors.Is(err, io.EOF)
		}
	}
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
