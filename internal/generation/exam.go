package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/antigravity-dev/studybuddy/internal/kbretrieval"
)

// ExamQuestion is one multiple-choice question of a generated practice exam.
type ExamQuestion struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	AnswerIndex int      `json:"answerIndex"`
	Citations   []string `json:"citations"`
}

// PracticeExam is the result of GeneratePracticeExam.
type PracticeExam struct {
	CourseID    string         `json:"courseId"`
	GeneratedAt string         `json:"generatedAt"`
	Questions   []ExamQuestion `json:"questions"`
}

type examPayload struct {
	CourseID    string            `json:"courseId"`
	GeneratedAt string            `json:"generatedAt"`
	Questions   []examQuestionRaw `json:"questions"`
}

type examQuestionRaw struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	AnswerIndex *int     `json:"answerIndex"`
	Citations   []string `json:"citations"`
}

// GeneratePracticeExam implements generatePracticeExam(courseId, n)
// (spec §4.F), analogous to GenerateFlashcards with a question schema.
func (g *Generator) GeneratePracticeExam(ctx context.Context, courseID string, n int) (*PracticeExam, error) {
	rows, err := kbretrieval.Retrieve(ctx, g.KB, courseID, fmt.Sprintf("Generate %d practice exam questions.", n), contextRetrievalK)
	if err != nil {
		return nil, fmt.Errorf("generation: retrieve practice exam context: %w", err)
	}
	if len(rows) == 0 {
		return nil, &GenerationError{Reason: "no knowledge base context available for practice exam generation"}
	}

	prompt := fmt.Sprintf(
		"Return ONLY JSON object. No markdown.\n"+
			`Schema: {"courseId":"...","generatedAt":"RFC3339Z","questions":[{"id":"q1","prompt":"...","choices":["...","..."],"answerIndex":0,"citations":["s3://..."]}]}`+"\n"+
			"courseId must be %s. Use exactly %d questions.\n"+
			"generatedAt must be %s format.\n"+
			"Use grounded facts only from context.\n"+
			"Context:\n%s",
		courseID, n, utcNowRFC3339(), contextBlock(rows, contextBlockLimit),
	)

	text, intervened, err := g.Model.InvokeJSON(ctx, studyGenerationSystemPrompt(), prompt, 1800, g.Guard)
	if err != nil {
		return nil, fmt.Errorf("generation: invoke model for practice exam: %w", err)
	}
	if intervened {
		return nil, &GuardrailBlockedError{Reason: "practice exam generation blocked by guardrail"}
	}

	var payload examPayload
	if err := extractJSON(text, &payload); err != nil {
		return nil, &GenerationError{Reason: "practice exam model response must be an object"}
	}
	if payload.Questions == nil {
		return nil, &GenerationError{Reason: "practice exam must include questions array"}
	}

	fallback := defaultCitations(rows, 3)
	questions := make([]ExamQuestion, 0, n)
	for i, row := range payload.Questions {
		promptText := strings.TrimSpace(row.Prompt)
		if promptText == "" {
			continue
		}
		choices := make([]string, 0, len(row.Choices))
		for _, c := range row.Choices {
			if c = strings.TrimSpace(c); c != "" {
				choices = append(choices, c)
			}
		}
		if len(choices) < 2 || row.AnswerIndex == nil || *row.AnswerIndex < 0 {
			continue
		}
		id := strings.TrimSpace(row.ID)
		if id == "" {
			id = fmt.Sprintf("q-%d", i+1)
		}
		questions = append(questions, ExamQuestion{
			ID:          id,
			Prompt:      promptText,
			Choices:     choices,
			AnswerIndex: *row.AnswerIndex,
			Citations:   normalizeCitations(row.Citations, fallback),
		})
		if len(questions) >= n {
			break
		}
	}

	if len(questions) == 0 {
		return nil, &GenerationError{Reason: "practice exam model response did not contain valid questions"}
	}

	generatedAt := strings.TrimSpace(payload.GeneratedAt)
	if generatedAt == "" {
		generatedAt = utcNowRFC3339()
	}
	examCourseID := strings.TrimSpace(payload.CourseID)
	if examCourseID == "" {
		examCourseID = courseID
	}

	return &PracticeExam{
		CourseID:    examCourseID,
		GeneratedAt: generatedAt,
		Questions:   questions,
	}, nil
}
