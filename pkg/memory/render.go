package memory

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

func (s *Store) render(ranked []scored) string {
	entries := make([]string, 0, len(ranked))
	for _, r := range ranked {
		m := r.memory
		entries = append(entries, fmt.Sprintf(
			"<memory id=\"%s\" date=\"%s\" relevance=\"%.3f\" importance=\"%s\">\n\t%s\n</memory>",
			m.ID,
			html.EscapeString(m.Timestamp.Format(s.dateLayout)),
			r.relevance,
			strconv.FormatFloat(m.Importance, 'f', -1, 64),
			m.Content,
		))
	}

	var b strings.Builder
	b.WriteString("<system type=\"memory_load\">\n")
	b.WriteString(strings.Join(entries, "\n"))
	b.WriteString("\n</system>")
	return b.String()
}
