// Package kbretrieval implements the filter-then-fallback vector retrieval
// policy (spec §4.E) on top of the ports.KBClient interface. The concrete
// KB (managed service or a local vec index) is out of the core's scope;
// this package only owns the retrieval policy.
package kbretrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/ports"
)

func clamp(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// InScope reports whether source is in-scope for courseID: after optionally
// stripping a leading "uploads/", it must begin with "{courseID}/" or
// "canvas-materials/{anyUser}/{courseID}/" (glossary "In-scope source").
func InScope(courseID, source string) bool {
	stripped := strings.TrimPrefix(source, "uploads/")
	if strings.HasPrefix(stripped, courseID+"/") {
		return true
	}
	if rest, ok := strings.CutPrefix(stripped, "canvas-materials/"); ok {
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 2 && parts[1] != "" {
			after := strings.TrimSuffix(parts[1], "/")
			if after == courseID || strings.HasPrefix(parts[1], courseID+"/") {
				return true
			}
		}
	}
	return false
}

// Retrieve runs the filter-then-fallback policy: it asks the KB to score
// numberOfResults = clamp(k*5, 50, 100) candidates scoped to courseID; on
// failure or an empty result it retries unfiltered; then it prefers the
// first k in-scope rows, falling back to the first k of any valid row when
// scoping leaves nothing (to tolerate KB/scope drift).
func Retrieve(ctx context.Context, kb ports.KBClient, courseID, query string, k int) ([]ports.RetrievalRow, error) {
	if k <= 0 {
		return nil, nil
	}
	numberOfResults := clamp(k*5, 50, 100)
	scopedQuery := fmt.Sprintf("course:%s\n%s", courseID, query)

	rows, err := kb.Retrieve(ctx, courseID, scopedQuery, numberOfResults)
	if err != nil || len(rows) == 0 {
		rows, err = kb.Retrieve(ctx, "", scopedQuery, numberOfResults)
		if err != nil {
			return nil, err
		}
	}

	var inScope, other []ports.RetrievalRow
	for _, row := range rows {
		if strings.TrimSpace(row.Text) == "" {
			continue
		}
		if InScope(courseID, row.Source) {
			inScope = append(inScope, row)
		} else {
			other = append(other, row)
		}
	}

	if len(inScope) > 0 {
		return firstN(inScope, k), nil
	}
	if len(other) > 0 {
		return firstN(other, k), nil
	}
	return nil, nil
}

func firstN(rows []ports.RetrievalRow, n int) []ports.RetrievalRow {
	if len(rows) <= n {
		return rows
	}
	return rows[:n]
}
