package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// WrongAnswerItem is one incorrect answer from one attempt. Rows are
// append-only and keyed per attempt on purpose: the table is a learner's
// error history for spaced review, not a cache of current mistakes.
type WrongAnswerItem struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index:idx_wrong_item,unique" json:"user_id"`
	LessonID      uuid.UUID      `gorm:"type:uuid;not null;index:idx_wrong_item,unique" json:"lesson_id"`
	QuestionID    uuid.UUID      `gorm:"type:uuid;not null;index:idx_wrong_item,unique" json:"question_id"`
	AttemptNumber int            `gorm:"column:attempt_number;not null;index:idx_wrong_item,unique" json:"attempt_number"`
	QuestionType  string         `gorm:"column:question_type;not null" json:"question_type"`
	QuestionIndex int            `gorm:"column:question_index;not null" json:"question_index"`
	PromptMD      string         `gorm:"column:prompt_md" json:"prompt_md"`
	CorrectAnswer string         `gorm:"column:correct_answer" json:"correct_answer"`
	UserAnswer    datatypes.JSON `gorm:"type:jsonb;column:user_answer" json:"user_answer,omitempty"`
	CreatedAt     time.Time      `gorm:"not null;index" json:"created_at"`
}

func (WrongAnswerItem) TableName() string { return "wrong_answer_item" }
