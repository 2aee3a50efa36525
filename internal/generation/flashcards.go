package generation

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antigravity-dev/studybuddy/internal/kbretrieval"
	"github.com/antigravity-dev/studybuddy/internal/models"
	"github.com/antigravity-dev/studybuddy/internal/ports"
)

const contextRetrievalK = 8
const contextBlockLimit = 8

// Generator runs the RAG flashcard/exam/chat operations of spec §4.F over
// an injected KB client, model client, and object store.
type Generator struct {
	KB     ports.KBClient
	Model  ports.ModelClient
	Store  ports.ObjectStore
	Guard  *ports.GuardrailConfig
}

type cardPayload struct {
	ID        string   `json:"id"`
	CourseID  string   `json:"courseId"`
	TopicID   string   `json:"topicId"`
	Prompt    string   `json:"prompt"`
	Answer    string   `json:"answer"`
	Citations []string `json:"citations"`
}

// GenerateFlashcards implements generateFlashcards(courseId, n) (spec §4.F).
func (g *Generator) GenerateFlashcards(ctx context.Context, courseID string, n int) ([]models.Card, error) {
	rows, err := kbretrieval.Retrieve(ctx, g.KB, courseID, fmt.Sprintf("Generate %d flashcards for key concepts.", n), contextRetrievalK)
	if err != nil {
		return nil, fmt.Errorf("generation: retrieve flashcard context: %w", err)
	}
	if len(rows) == 0 {
		return nil, &GenerationError{Reason: "no knowledge base context available for flashcard generation"}
	}

	prompt := fmt.Sprintf(
		"Return ONLY JSON array. No markdown.\n"+
			"Create exactly %d flashcards using this schema: "+
			`[{"id":"card-1","courseId":"...","topicId":"topic-...","prompt":"...","answer":"...","citations":["s3://..."]}].`+"\n"+
			"courseId must be %s.\n"+
			"Use grounded facts only from context.\n"+
			"Context:\n%s",
		n, courseID, contextBlock(rows, contextBlockLimit),
	)

	text, intervened, err := g.Model.InvokeJSON(ctx, studyGenerationSystemPrompt(), prompt, 1800, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: invoke model for flashcards: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "flashcard generation blocked by guardrail"}
	}

	var payload []cardPayload
	if err := extractJSON(text, &payload); err != nil {
		return nil, &GenerationError{Reason: "flashcard model response must be an array"}
	}

	fallback := defaultCitations(rows, 3)
	cards := make([]models.Card, 0, n)
	for i, row := range payload {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			id = fmt.Sprintf("card-%d", i+1)
		}
		cardCourseID := strings.TrimSpace(row.CourseID)
		if cardCourseID == "" {
			cardCourseID = courseID
		}
		topicID := strings.TrimSpace(row.TopicID)
		if topicID == "" {
			topicID = "topic-unknown"
		}
		promptText := strings.TrimSpace(row.Prompt)
		answer := strings.TrimSpace(row.Answer)
		if promptText == "" || answer == "" {
			continue
		}
		cards = append(cards, models.Card{
			ID:        id,
			CourseID:  cardCourseID,
			TopicID:   topicID,
			Prompt:    promptText,
			Answer:    answer,
			Citations: normalizeCitations(row.Citations, fallback),
		})
		if len(cards) >= n {
			break
		}
	}

	if len(cards) == 0 {
		return nil, &GenerationError{Reason: "flashcard model response did not contain valid cards"}
	}
	return cards, nil
}

// GenerateFlashcardsFromMaterials implements
// generateFlashcardsFromMaterials(courseId, materialKeys, n) (spec §4.F):
// cards grounded in specific uploaded/mirrored materials rather than a KB
// retrieval call.
func (g *Generator) GenerateFlashcardsFromMaterials(ctx context.Context, courseID string, materialKeys []string, n int) ([]models.Card, error) {
	documents := make(map[string][]byte)
	var textParts []string

	for _, key := range materialKeys {
		data, contentType, err := g.Store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("generation: fetch material %s: %w", key, err)
		}
		if contentType == "application/pdf" {
			documents[key] = data
			continue
		}
		textParts = append(textParts, decodeMaterialText(data))
	}

	instruction := fmt.Sprintf(
		"Return ONLY JSON array. No markdown.\n"+
			"Create exactly %d flashcards grounded only in the attached/provided materials, using "+
			`this schema: [{"id":"card-1","courseId":"...","topicId":"topic-...","prompt":"...","answer":"...","citations":["s3://..."]}].`+"\n"+
			"courseId must be %s.",
		n, courseID,
	)
	if len(textParts) > 0 {
		instruction += "\n\nMaterials:\n" + strings.Join(textParts, "\n\n")
	}

	text, intervened, err := g.Model.InvokeMultimodalJSON(ctx, studyGenerationSystemPrompt(), instruction, documents, 1800, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: invoke model for materials flashcards: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "flashcard generation from materials blocked by guardrail"}
	}

	var payload []cardPayload
	if err := extractJSON(text, &payload); err != nil {
		return nil, &GenerationError{Reason: "flashcard model response must be an array"}
	}

	fallback := materialKeys
	if len(fallback) > 3 {
		fallback = fallback[:3]
	}
	cards := make([]models.Card, 0, n)
	for i, row := range payload {
		id := strings.TrimSpace(row.ID)
		if id == "" {
			id = fmt.Sprintf("card-%d", i+1)
		}
		promptText := strings.TrimSpace(row.Prompt)
		answer := strings.TrimSpace(row.Answer)
		if promptText == "" || answer == "" {
			continue
		}
		topicID := strings.TrimSpace(row.TopicID)
		if topicID == "" {
			topicID = "topic-unknown"
		}
		cards = append(cards, models.Card{
			ID:        id,
			CourseID:  courseID,
			TopicID:   topicID,
			Prompt:    promptText,
			Answer:    answer,
			Citations: normalizeCitations(row.Citations, fallback),
		})
		if len(cards) >= n {
			break
		}
	}
	if len(cards) == 0 {
		return nil, &GenerationError{Reason: "flashcard model response did not contain valid cards"}
	}
	return cards, nil
}

// decodeMaterialText decodes non-PDF material bytes as text, trying UTF-8
// first and falling back to a byte-preserving latin-1 (ISO-8859-1) decode so
// no legacy-encoded upload is silently dropped.
func decodeMaterialText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	// latin-1 (ISO-8859-1) maps byte values directly onto the first 256
	// Unicode code points, so this never fails for non-UTF-8 uploads.
	runes := make([]rune, len(data))
	for i, b := range data {
		runes[i] = rune(b)
	}
	return string(runes)
}
