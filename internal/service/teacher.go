package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/ollagram/ollagram/internal/database"
)

type Mode string

const (
	ModeChat       Mode = "chat"
	ModeCorrection Mode = "correction"
	ModeExercises  Mode = "exercises"
)

var Modes = []Mode{ModeChat, ModeCorrection, ModeExercises}

type ExerciseKind string

const (
	ExerciseGrammar     ExerciseKind = "grammar"
	ExerciseVocabulary  ExerciseKind = "vocabulary"
	ExerciseTranslation ExerciseKind = "translation"
)

var ExerciseKinds = []ExerciseKind{ExerciseGrammar, ExerciseVocabulary, ExerciseTranslation}

const DefaultLevel = "beginner"

var (
	ErrUnknownMode     = errors.New("unknown mode")
	ErrUnknownExercise = errors.New("unknown exercise kind")
)

const (
	teacherChatPrompt       = "You are an English teacher. Respond in English, correct mistakes when you see them."
	teacherCorrectionPrompt = "You are an English teacher correcting student's work."
	teacherExercisePrompt   = "You are an English teacher creating learning exercises."
)

const correctionTemplate = `**Task:** Correct this English text and provide detailed explanations for all errors.

**Text to correct:**
"%s"

**Response format requirements:**
1. **Corrected Text:**
   - Provide the fully corrected version of the text with proper grammar, spelling, punctuation, and word choice.
   - Preserve the original meaning unless it is ambiguous.

2. **Error Analysis:**
   - List each mistake in the order they appear in the text.
   - For each error, specify:
     - **Type of error** (grammar, spelling, word order, tense, article usage, etc.)
     - **Incorrect form** (quote the exact problematic part)
     - **Corrected form** (provide the fixed version)
     - **Explanation** (briefly explain why it's wrong and the rule applied)

3. **Additional Notes (if needed):**
   - If the text has stylistic issues (awkward phrasing, unnatural word choice), suggest improvements.
   - If a sentence is ambiguous, provide possible interpretations.

**Important:**
- Be precise, do not invent mistakes that don't exist.
- If the text is already correct, state: "No errors found."
- Use clear, simple English in explanations.`

const exerciseTemplate = `Generate a %s exercise for %s level English learner.
Include:
1. Clear instructions (in English only)
2. The exercise itself (in English only)
3. The correct answer (hidden until requested)

Important restrictions:
- Use ONLY English for all exercise content (instructions, questions, answers)
- You may use the learner's language ONLY for meta-commentary about the exercise structure if absolutely necessary
- Never mix languages within the exercise materials
- Never provide translations unless explicitly requested`

func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !slices.Contains(Modes, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

func ParseExerciseKind(s string) (ExerciseKind, error) {
	k := ExerciseKind(s)
	if !slices.Contains(ExerciseKinds, k) {
		return "", fmt.Errorf("%w: %q", ErrUnknownExercise, s)
	}
	return k, nil
}

// TeacherService decides how a message is framed for the model depending on
// the owner's mode.
type TeacherService struct {
	db         database.Database
	basePrompt string
	level      string
}

func NewTeacherService(db database.Database, basePrompt string) *TeacherService {
	return &TeacherService{db: db, basePrompt: basePrompt, level: DefaultLevel}
}

// Mode returns the owner's mode, ModeChat when none was set.
func (t *TeacherService) Mode(ctx context.Context, ownerID int64) (Mode, error) {
	settings, err := t.db.GetChatSettings(ctx, ownerID)
	if errors.Is(err, database.ErrNotFound) {
		return ModeChat, nil
	}
	if err != nil {
		return "", err
	}
	mode, err := ParseMode(settings.Mode)
	if err != nil {
		return ModeChat, nil
	}
	return mode, nil
}

func (t *TeacherService) SetMode(ctx context.Context, ownerID int64, mode Mode) error {
	if _, err := ParseMode(string(mode)); err != nil {
		return err
	}
	return t.db.SetMode(ctx, ownerID, string(mode))
}

// Prompt returns the system prompt and the message to send for text in mode.
func (t *TeacherService) Prompt(mode Mode, text string) (systemPrompt, message string) {
	switch mode {
	case ModeCorrection:
		return teacherCorrectionPrompt, fmt.Sprintf(correctionTemplate, text)
	case ModeExercises:
		return teacherChatPrompt, text
	default:
		return t.basePrompt, text
	}
}

func (t *TeacherService) ExercisePrompt(kind ExerciseKind) (systemPrompt, message string, err error) {
	if _, err := ParseExerciseKind(string(kind)); err != nil {
		return "", "", err
	}
	return teacherExercisePrompt, fmt.Sprintf(exerciseTemplate, kind, t.level), nil
}
