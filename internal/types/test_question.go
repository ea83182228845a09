package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Question types understood by the grading dispatcher.
const (
	QuestionTypeMultipleChoice = "multiple_choice"
	QuestionTypeOrdering       = "ordering"
	QuestionTypeFillBlank      = "fill_blank"
	QuestionTypeSpeaking       = "speaking"
	QuestionTypeWriting        = "writing"
)

// TestQuestion is a question-bank row owned by the content service. The
// assessment engine only ever reads it to take per-session snapshots.
type TestQuestion struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LessonID uuid.UUID `gorm:"type:uuid;not null;index" json:"lesson_id"`
	Lesson   *Lesson   `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	Index    int       `gorm:"column:index;not null" json:"index"`
	Type     string    `gorm:"column:type;not null" json:"type"`
	PromptMD string    `gorm:"column:prompt_md;not null" json:"prompt_md"`
	Options  datatypes.JSON `gorm:"type:jsonb;column:options" json:"options"`
	// CorrectAnswer holds the answer key for deterministic types. Fill-blank
	// keys list every accepted answer separated by "||".
	CorrectAnswer string `gorm:"column:correct_answer" json:"correct_answer"`
	// Transcript is the reference text a speaking answer is scored against.
	Transcript string         `gorm:"column:transcript" json:"transcript"`
	Weight     float64        `gorm:"column:weight;not null;default:1" json:"weight"`
	SkillType  string         `gorm:"column:skill_type" json:"skill_type"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TestQuestion) TableName() string { return "test_question" }
