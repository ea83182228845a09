package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Course struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Description  string         `gorm:"column:description" json:"description"`
	LanguageCode string         `gorm:"column:language_code;not null" json:"language_code"`
	Level        string         `gorm:"column:level" json:"level"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt    time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Course) TableName() string { return "course" }

// CourseVersion is an immutable published revision of a course. Lessons hang
// off a version, not the course, so in-flight learners keep the content they
// enrolled into.
type CourseVersion struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CourseID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_course_version,unique" json:"course_id"`
	Course      *Course        `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseID;references:ID" json:"course,omitempty"`
	Version     int            `gorm:"column:version;not null;index:idx_course_version,unique" json:"version"`
	PublishedAt *time.Time     `gorm:"column:published_at" json:"published_at,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (CourseVersion) TableName() string { return "course_version" }
