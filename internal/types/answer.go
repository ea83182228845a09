package types

import "github.com/google/uuid"

// Pure JSON contracts for the session API. Not DB models.

// AnswerInput is one submitted answer. Text carries typed answers and chosen
// options; AudioKey/ImageKey reference uploaded artifacts in the bucket for
// speaking and photographed writing answers.
type AnswerInput struct {
	QuestionID uuid.UUID `json:"question_id"`
	Text       string    `json:"text,omitempty"`
	AudioKey   string    `json:"audio_key,omitempty"`
	ImageKey   string    `json:"image_key,omitempty"`
}

// QuestionView is what a test taker sees: the answer key is withheld, the
// reference transcript is included only for speaking items.
type QuestionView struct {
	ID         uuid.UUID `json:"id"`
	QuestionID uuid.UUID `json:"question_id"`
	Index      int       `json:"index"`
	Type       string    `json:"type"`
	PromptMD   string    `json:"prompt_md"`
	Options    []string  `json:"options,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Weight     float64   `json:"weight"`
	SkillType  string    `json:"skill_type,omitempty"`
}

// AnswerRecord is the per-question slice of a graded attempt as stored in
// LessonProgress.AnswersJSON.
type AnswerRecord struct {
	QuestionID    uuid.UUID   `json:"question_id"`
	Index         int         `json:"index"`
	Type          string      `json:"type"`
	Answer        AnswerInput `json:"answer"`
	IsCorrect     bool        `json:"is_correct"`
	AwardedPoints float64     `json:"awarded_points"`
	AIScore       *float64    `json:"ai_score,omitempty"`
}
