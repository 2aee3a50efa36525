package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/kbretrieval"
)

const actionStart = "<<<ACTION>>>"
const actionEnd = "<<<END_ACTION>>>"
const historyCap = 10

// ChatMessage is one turn of a conversation history passed into
// ChatAnswerWithActions.
type ChatMessage struct {
	Role    string
	Content string
}

// MaterialRef is one course material offered to the model for action-aware
// chat's flashcard/exam suggestion flow.
type MaterialRef struct {
	CanvasFileID string
	DisplayName  string
}

// ChatAnswer is the return shape of Chat/ChatAnswerWithActions.
type ChatAnswer struct {
	Answer    string         `json:"answer"`
	Citations []string       `json:"citations"`
	Action    map[string]any `json:"suggestedAction,omitempty"`
}

type chatPayload struct {
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// Chat implements chatAnswer(courseId, question, canvasContext?) (spec
// §4.F): a pre-prompt safety gate, an end-to-end retrieve-and-generate
// call, and a fallback to a manual two-stage retrieve+invoke path when
// every citation returned is off-course.
func (g *Generator) Chat(ctx context.Context, courseID, question, canvasContext string) (*ChatAnswer, error) {
	if err := enforceQuestionSafety(ctx, question); err != nil {
		return nil, err
	}

	canvasSection := ""
	if canvasContext != "" {
		canvasSection = "\nCanvas assignment data:\n" + canvasContext + "\n"
	}
	systemPrompt := chatSystemPrompt(courseID)
	query := question + canvasSection

	answer, citations, intervened, err := g.Model.RetrieveAndGenerate(ctx, courseID, query, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: chat retrieval failed: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "chat answer blocked by guardrail"}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &GenerationError{Reason: "retrieve_and_generate returned empty response"}
	}
	if isRefusal(answer) {
		return g.chatAnswerManual(ctx, courseID, question, systemPrompt, canvasSection)
	}

	var inScope, offCourse []string
	seen := make(map[string]bool)
	for _, source := range citations {
		if source == "" || seen[source] {
			continue
		}
		seen[source] = true
		if kbretrieval.InScope(courseID, source) {
			inScope = append(inScope, source)
		} else {
			offCourse = append(offCourse, source)
		}
	}

	if len(offCourse) > 0 && len(inScope) == 0 {
		return g.chatAnswerManual(ctx, courseID, question, systemPrompt, canvasSection)
	}

	return &ChatAnswer{Answer: answer, Citations: inScope}, nil
}

func isRefusal(text string) bool {
	lower := strings.ToLower(text)
	return len(lower) < 80 && (strings.Contains(lower, "unable to assist") ||
		strings.Contains(lower, "i cannot") ||
		strings.Contains(lower, "i don't have"))
}

func (g *Generator) chatAnswerManual(ctx context.Context, courseID, question, systemPrompt, canvasSection string) (*ChatAnswer, error) {
	rows, err := kbretrieval.Retrieve(ctx, g.KB, courseID, question, contextRetrievalK)
	if err != nil {
		return nil, fmt.Errorf("generation: retrieve manual chat context: %w", err)
	}
	if len(rows) == 0 {
		return nil, &GenerationError{Reason: "no knowledge base context available for this course"}
	}

	prompt := fmt.Sprintf(
		"%s\n\nCourse context:\n%s\n\n%s\nStudent question: %s\n\n"+
			`Answer the student's question using the course context above. Return a JSON object: {"answer": "...", "citations": ["s3://..."]}`,
		systemPrompt, contextBlock(rows, len(rows)), canvasSection, question,
	)

	text, intervened, err := g.Model.InvokeJSON(ctx, "", prompt, 4096, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: invoke model for manual chat: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "manual chat answer blocked by guardrail"}
	}

	var payload chatPayload
	if err := extractJSON(text, &payload); err != nil {
		return nil, &GenerationError{Reason: "manual chat model returned an unparseable response"}
	}
	answer := strings.TrimSpace(payload.Answer)
	if answer == "" {
		return nil, &GenerationError{Reason: "manual chat model returned empty answer"}
	}

	fallback := defaultCitations(rows, 3)
	return &ChatAnswer{Answer: answer, Citations: normalizeCitations(payload.Citations, fallback)}, nil
}

// ChatAnswerWithActions implements chatAnswerWithActions (spec §4.F): chat
// with capped conversation history and an optional trailing
// <<<ACTION>>>...<<<END_ACTION>>> block the app can act on.
func (g *Generator) ChatAnswerWithActions(ctx context.Context, courseID, question string, history []ChatMessage, canvasContext string, materials []MaterialRef) (*ChatAnswer, error) {
	if err := enforceQuestionSafety(ctx, question); err != nil {
		return nil, err
	}

	rows, err := kbretrieval.Retrieve(ctx, g.KB, courseID, question, contextRetrievalK)
	if err != nil {
		return nil, fmt.Errorf("generation: retrieve action-chat context: %w", err)
	}
	contextBlockText := contextBlock(rows, len(rows))

	systemPrompt := chatWithActionsSystemPrompt(courseID, materialsSection(materials))

	canvasSection := ""
	if canvasContext != "" {
		canvasSection = "\nCanvas assignment data:\n" + canvasContext + "\n"
	}

	var userContent strings.Builder
	if contextBlockText != "" {
		userContent.WriteString("Course context:\n")
		userContent.WriteString(contextBlockText)
		userContent.WriteString("\n\n")
	}
	if canvasSection != "" {
		userContent.WriteString(canvasSection)
		userContent.WriteString("\n")
	}
	userContent.WriteString("Student question: ")
	userContent.WriteString(question)

	userPrompt := renderHistory(history) + userContent.String()

	text, intervened, err := g.Model.InvokeJSON(ctx, systemPrompt, userPrompt, 4096, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: invoke model for action-aware chat: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "action-aware chat blocked by guardrail"}
	}

	answer, action := parseActionBlock(strings.TrimSpace(text))
	if answer == "" {
		return nil, &GenerationError{Reason: "chat model returned empty answer"}
	}

	return &ChatAnswer{
		Answer:    answer,
		Citations: defaultCitations(rows, 3),
		Action:    action,
	}, nil
}

func materialsSection(materials []MaterialRef) string {
	if len(materials) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("STUDY TOOL CAPABILITIES:\n")
	sb.WriteString("You can help students create flashcard decks and practice exams from their course materials.\n\n")
	sb.WriteString("Available materials for this course:\n")
	for _, m := range materials {
		sb.WriteString(fmt.Sprintf("- %s (ID: %s)\n", m.DisplayName, m.CanvasFileID))
	}
	sb.WriteString("\nWhen a student asks about flashcards or practice exams/tests:\n" +
		"1. If they're vague (e.g., \"make me flashcards\"), ask what topic or material they want to study.\n" +
		"2. If they specify a topic, match it to the available materials above and suggest the best matches.\n" +
		"3. When you have enough info to suggest materials, include an ACTION block at the end of your response.\n" +
		"4. If the student is explicitly asking to generate a flashcard deck or practice exam now, your " +
		"visible response must be only a brief confirmation sentence (one sentence max) and must not " +
		"include any drafted flashcards, questions, answers, or exam content.\n\n" +
		actionStart + "\n" +
		`{"type": "flashcards", "materialIds": ["id1", "id2"], "materialNames": ["name1", "name2"], "count": 12}` + "\n" +
		actionEnd + "\n\n" +
		"- For flashcards: set \"type\": \"flashcards\", include materialIds and count (default 12)\n" +
		"- For practice exams: set \"type\": \"practice_exam\", include count (default 10), materialIds is optional\n" +
		"- Only include the ACTION block when you have identified specific materials to suggest\n" +
		"- The ACTION block will be hidden from the student and replaced with a confirmation UI\n")
	return sb.String()
}

func renderHistory(history []ChatMessage) string {
	if len(history) == 0 {
		return ""
	}
	if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	var sb strings.Builder
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" || (msg.Role != "user" && msg.Role != "assistant") {
			continue
		}
		sb.WriteString(msg.Role)
		sb.WriteString(": ")
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseActionBlock extracts and removes a trailing <<<ACTION>>> block from
// text, returning the cleaned answer and the parsed action object (nil if
// absent or malformed).
func parseActionBlock(text string) (string, map[string]any) {
	start := strings.Index(text, actionStart)
	if start == -1 {
		return text, nil
	}
	end := strings.Index(text[start:], actionEnd)
	if end == -1 {
		return text, nil
	}
	end += start

	block := strings.TrimSpace(text[start+len(actionStart) : end])
	clean := strings.TrimSpace(text[:start] + text[end+len(actionEnd):])

	var action map[string]any
	if err := extractJSON(block, &action); err != nil {
		return clean, nil
	}
	if _, ok := action["type"]; !ok {
		return clean, nil
	}
	return clean, action
}
