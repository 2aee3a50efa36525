package generation

import (
	"strings"
	"time"

	"github.com/antigravity-dev/studybuddy/internal/ports"
)

// utcNowRFC3339 renders the current instant the way every generated
// timestamp in this package is stamped: second precision, "Z" suffix.
func utcNowRFC3339() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05Z")
}

// normalizeCitations trims and drops blank entries from raw; if nothing
// survives, it falls back to a copy of fallback.
func normalizeCitations(raw []string, fallback []string) []string {
	citations := make([]string, 0, len(raw))
	for _, c := range raw {
		c = strings.TrimSpace(c)
		if c != "" {
			citations = append(citations, c)
		}
	}
	if len(citations) == 0 {
		return append([]string(nil), fallback...)
	}
	return citations
}

// defaultCitations returns the first n non-empty sources from rows, used as
// the citation fallback when the model omits or empties its own citations.
func defaultCitations(rows []ports.RetrievalRow, n int) []string {
	out := make([]string, 0, n)
	for _, row := range rows {
		if len(out) >= n {
			break
		}
		if src := strings.TrimSpace(row.Source); src != "" {
			out = append(out, src)
		}
	}
	return out
}

func contextBlock(rows []ports.RetrievalRow, n int) string {
	if len(rows) > n {
		rows = rows[:n]
	}
	texts := make([]string, 0, len(rows))
	for _, row := range rows {
		texts = append(texts, row.Text)
	}
	return strings.Join(texts, "\n\n")
}
