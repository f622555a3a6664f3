package parser

import (
	"fmt"
	"regexp"
	"strconv"
)

const (
	keyOpen  = "\uE000"
	keyClose = "\uE001"
)

// placeholders keeps text cut out of the document together with the keys
// standing in for it. Keys are built from private-use runes: they never
// contain markup characters and survive control character cleanup.
type placeholders struct {
	kind      byte
	originals []string
	pattern   *regexp.Regexp
}

func newPlaceholders(kind byte) *placeholders {
	return &placeholders{
		kind:    kind,
		pattern: regexp.MustCompile(keyOpen + string(kind) + `(\d+)` + keyClose),
	}
}

func (p *placeholders) add(original string) string {
	key := fmt.Sprintf("%s%c%d%s", keyOpen, p.kind, len(p.originals), keyClose)
	p.originals = append(p.originals, original)
	return key
}

// restore puts the original text back in place of every known key
func (p *placeholders) restore(s string) string {
	if len(p.originals) == 0 {
		return s
	}

	return p.pattern.ReplaceAllStringFunc(s, func(key string) string {
		m := p.pattern.FindStringSubmatch(key)
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx >= len(p.originals) {
			return key
		}
		return p.originals[idx]
	})
}
