package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LessonProgress is the per-(user, lesson) ledger row. Score holds the
// best-ever percentage and never regresses; AnswersJSON snapshots the best
// attempt only.
type LessonProgress struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_progress_user_lesson,unique" json:"user_id"`
	User          *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	LessonID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_progress_user_lesson,unique" json:"lesson_id"`
	Lesson        *Lesson        `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	Score         float64        `gorm:"column:score;not null;default:0" json:"score"`
	MaxScore      float64        `gorm:"column:max_score;not null;default:0" json:"max_score"`
	AttemptNumber int            `gorm:"column:attempt_number;not null;default:0" json:"attempt_number"`
	AnswersJSON   datatypes.JSON `gorm:"type:jsonb;column:answers_json" json:"answers_json,omitempty"`
	NeedsReview   bool           `gorm:"column:needs_review;not null;default:false" json:"needs_review"`
	// CompletedAt marks the first finalized attempt and is never cleared.
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (LessonProgress) TableName() string { return "lesson_progress" }
