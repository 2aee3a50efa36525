package generation

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

var trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)

// extractJSON parses text into v using the four-stage salvage strategy
// (spec §4.F): (1) direct parse, (2) the first fenced ```json``` block,
// (3) a greedy slice from the first '{' or '[' to the matching last '}' or
// ']', (4) a trailing-comma-tolerant re-parse of that slice. The first
// stage to produce valid JSON wins.
func extractJSON(text string, v any) error {
	text = strings.TrimSpace(text)

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		if err := json.Unmarshal([]byte(strings.TrimSpace(m[1])), v); err == nil {
			return nil
		}
	}

	slice := greedySlice(text)
	if slice != "" {
		if err := json.Unmarshal([]byte(slice), v); err == nil {
			return nil
		}
		repaired := trailingCommaPattern.ReplaceAllString(slice, "$1")
		if err := json.Unmarshal([]byte(repaired), v); err == nil {
			return nil
		}
	}

	return &GenerationError{Reason: "could not parse model output as JSON"}
}

// greedySlice returns the substring from the first '{' or '[' to the last
// matching '}' or ']', whichever opening bracket comes first in text.
func greedySlice(text string) string {
	openBrace := strings.IndexByte(text, '{')
	openBracket := strings.IndexByte(text, '[')

	start := -1
	var close byte
	switch {
	case openBrace == -1 && openBracket == -1:
		return ""
	case openBrace == -1:
		start, close = openBracket, ']'
	case openBracket == -1:
		start, close = openBrace, '}'
	case openBrace < openBracket:
		start, close = openBrace, '}'
	default:
		start, close = openBracket, ']'
	}

	end := strings.LastIndexByte(text, close)
	if end == -1 || end < start {
		return ""
	}
	return text[start : end+1]
}
