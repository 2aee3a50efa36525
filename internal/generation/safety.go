// Package generation implements the retrieval-augmented generation pipeline
// (spec §4.F): flashcards, practice exams, course chat, and the safety gate
// and JSON-extraction machinery they share.
package generation

import (
	"context"
	"regexp"

	"github.com/mdombrov-33/go-promptguard/detector"
)

var promptInjectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(ignore|disregard|bypass|override)\b.*\b(instruction|policy|rule|system|developer)\b`),
	regexp.MustCompile(`(?i)\b(reveal|show|print|leak|display)\b.*\b(system prompt|developer prompt|hidden prompt)\b`),
	regexp.MustCompile(`(?i)\b(jailbreak|dan mode|developer mode)\b`),
}

var cheatingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(answer|solve|complete|do|write)\s+(my|this|the)\s+(exam|quiz|test|homework|assignment)\b`),
	regexp.MustCompile(`(?i)\b(give|show|send)\s+(me\s+)?(the\s+)?(answer key|answers)\b.*\b(exam|quiz|test|homework|assignment)\b`),
	regexp.MustCompile(`(?i)\btake\s+(my|the)\s+(exam|quiz|test)\s+for\s+me\b`),
	regexp.MustCompile(`(?i)\bcheat(ing)?\s+(on|for)\s+(the\s+)?(exam|quiz|test|homework|assignment)\b`),
}

// guard is the statistical/pattern prompt-injection detector layered
// alongside the regex families above.
var guard = detector.New(
	detector.WithThreshold(0.6),
	detector.WithAllDetectors(),
	detector.WithMaxInputLength(4000),
)

func matchesAny(patterns []*regexp.Regexp, text string) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// enforceQuestionSafety rejects a user question that matches the documented
// prompt-injection or cheating regex families, or that go-promptguard's
// detector flags as unsafe. It must run before any retrieval call.
func enforceQuestionSafety(ctx context.Context, question string) error {
	if matchesAny(promptInjectionPatterns, question) || matchesAny(cheatingPatterns, question) {
		return &GuardrailBlockedError{Reason: "question matched a disallowed pattern"}
	}
	if result := guard.Detect(ctx, question); !result.Safe {
		return &GuardrailBlockedError{Reason: "question flagged by prompt-injection detector"}
	}
	return nil
}
