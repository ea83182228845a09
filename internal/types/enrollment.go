package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EnrollmentStatusInProgress = "in_progress"
	EnrollmentStatusCompleted  = "completed"
)

// Enrollment ties a user to one course version. Progress and status are
// derived entirely from lesson_progress rows by the rollup; no running
// counters are trusted between recomputations.
type Enrollment struct {
	ID              uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID          uuid.UUID      `gorm:"type:uuid;not null;index:idx_enrollment_user_version,unique" json:"user_id"`
	User            *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	CourseVersionID uuid.UUID      `gorm:"type:uuid;not null;index:idx_enrollment_user_version,unique" json:"course_version_id"`
	CourseVersion   *CourseVersion `gorm:"constraint:OnDelete:CASCADE;foreignKey:CourseVersionID;references:ID" json:"course_version,omitempty"`
	Status          string         `gorm:"column:status;not null;default:'in_progress'" json:"status"`
	Progress        float64        `gorm:"column:progress;not null;default:0" json:"progress"`
	CompletedAt     *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt       time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Enrollment) TableName() string { return "enrollment" }
