package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Lesson struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseVersionID uuid.UUID      `gorm:"type:uuid;not null;index" json:"course_version_id"`
	CourseVersion   *CourseVersion `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseVersionID;references:ID" json:"course_version,omitempty"`
	Index           int            `gorm:"column:index;not null" json:"index"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	LanguageCode    string         `gorm:"column:language_code;not null" json:"language_code"`
	// ShuffleQuestions randomizes the snapshot order taken at session start.
	ShuffleQuestions bool `gorm:"column:shuffle_questions;not null;default:false" json:"shuffle_questions"`
	// ContentUpdatedAt moves forward on every content edit. Lesson completions
	// older than this timestamp stop counting toward enrollment progress.
	ContentUpdatedAt time.Time      `gorm:"column:content_updated_at;not null" json:"content_updated_at"`
	Metadata         datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt        time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Lesson) TableName() string { return "lesson" }
