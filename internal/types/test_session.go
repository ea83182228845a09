package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session lifecycle. Mixed sessions go pending -> grading -> completed;
// fully deterministic ones go pending -> completed in one step. There is no
// transition out of completed.
const (
	SessionStatusPending   = "pending"
	SessionStatusGrading   = "grading"
	SessionStatusCompleted = "completed"
)

type TestSession struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID `gorm:"type:uuid;not null;index:idx_session_user_lesson" json:"user_id"`
	User          *User     `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	LessonID      uuid.UUID `gorm:"type:uuid;not null;index:idx_session_user_lesson" json:"lesson_id"`
	Lesson        *Lesson   `gorm:"constraint:OnDelete:CASCADE;foreignKey:LessonID;references:ID" json:"lesson,omitempty"`
	Status        string    `gorm:"column:status;not null;index" json:"status"`
	AttemptNumber int       `gorm:"column:attempt_number;not null" json:"attempt_number"`
	Score         float64   `gorm:"column:score;not null;default:0" json:"score"`
	MaxScore      float64   `gorm:"column:max_score;not null;default:0" json:"max_score"`
	Percentage    float64   `gorm:"column:percentage;not null;default:0" json:"percentage"`
	// Proficiency is a CEFR-like band derived from the final percentage.
	Proficiency string         `gorm:"column:proficiency" json:"proficiency,omitempty"`
	NeedsReview bool           `gorm:"column:needs_review;not null;default:false" json:"needs_review"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (TestSession) TableName() string { return "test_session" }
