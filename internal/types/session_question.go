package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SessionQuestion is the per-session copy of a bank question. Prompt, options,
// answer key and weight are frozen at session creation so bank edits cannot
// change an in-flight test.
type SessionQuestion struct {
	ID         uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID  uuid.UUID    `gorm:"type:uuid;not null;index" json:"session_id"`
	Session    *TestSession `gorm:"constraint:OnDelete:CASCADE;foreignKey:SessionID;references:ID" json:"session,omitempty"`
	QuestionID uuid.UUID    `gorm:"type:uuid;not null;index" json:"question_id"`
	Index      int          `gorm:"column:index;not null" json:"index"`
	Type       string       `gorm:"column:type;not null" json:"type"`
	PromptMD   string       `gorm:"column:prompt_md;not null" json:"prompt_md"`
	Options    datatypes.JSON `gorm:"type:jsonb;column:options" json:"options"`
	CorrectAnswer string      `gorm:"column:correct_answer" json:"-"`
	Transcript    string      `gorm:"column:transcript" json:"transcript,omitempty"`
	Weight        float64     `gorm:"column:weight;not null;default:1" json:"weight"`
	SkillType     string      `gorm:"column:skill_type" json:"skill_type"`

	// Set at submit/grading time.
	UserAnswer    datatypes.JSON `gorm:"type:jsonb;column:user_answer" json:"user_answer,omitempty"`
	IsCorrect     *bool          `gorm:"column:is_correct" json:"is_correct,omitempty"`
	AwardedPoints float64        `gorm:"column:awarded_points;not null;default:0" json:"awarded_points"`
	AIScore       *float64       `gorm:"column:ai_score" json:"ai_score,omitempty"`
	GradedAt      *time.Time     `gorm:"column:graded_at" json:"graded_at,omitempty"`

	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (SessionQuestion) TableName() string { return "session_question" }
