package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lingopath/lingopath-backend/internal/types"
)

func SeedUser(tb testing.TB, ctx context.Context, tx *gorm.DB, email string) *types.User {
	tb.Helper()
	u := &types.User{
		ID:         uuid.New(),
		Email:      email,
		FirstName:  "A",
		LastName:   "B",
		NativeLang: "en",
	}
	if err := tx.WithContext(ctx).Create(u).Error; err != nil {
		tb.Fatalf("seed user: %v", err)
	}
	return u
}

func SeedCourse(tb testing.TB, ctx context.Context, tx *gorm.DB, languageCode string) *types.Course {
	tb.Helper()
	c := &types.Course{
		ID:           uuid.New(),
		Title:        "course",
		LanguageCode: languageCode,
		Level:        "beginner",
		Metadata:     datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed course: %v", err)
	}
	return c
}

func SeedCourseVersion(tb testing.TB, ctx context.Context, tx *gorm.DB, courseID uuid.UUID, version int) *types.CourseVersion {
	tb.Helper()
	now := time.Now()
	cv := &types.CourseVersion{
		ID:          uuid.New(),
		CourseID:    courseID,
		Version:     version,
		PublishedAt: &now,
	}
	if err := tx.WithContext(ctx).Create(cv).Error; err != nil {
		tb.Fatalf("seed course version: %v", err)
	}
	return cv
}

func SeedLesson(tb testing.TB, ctx context.Context, tx *gorm.DB, versionID uuid.UUID, index int) *types.Lesson {
	tb.Helper()
	l := &types.Lesson{
		ID:               uuid.New(),
		CourseVersionID:  versionID,
		Index:            index,
		Title:            fmt.Sprintf("lesson %d", index),
		LanguageCode:     "fr",
		ContentUpdatedAt: time.Now().Add(-time.Hour),
		Metadata:         datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed lesson: %v", err)
	}
	return l
}

func SeedQuestion(tb testing.TB, ctx context.Context, tx *gorm.DB, lessonID uuid.UUID, index int, qType, correctAnswer string, weight float64) *types.TestQuestion {
	tb.Helper()
	q := &types.TestQuestion{
		ID:            uuid.New(),
		LessonID:      lessonID,
		Index:         index,
		Type:          qType,
		PromptMD:      fmt.Sprintf("question %d", index),
		Options:       datatypes.JSON([]byte("[]")),
		CorrectAnswer: correctAnswer,
		Weight:        weight,
		Metadata:      datatypes.JSON([]byte("{}")),
	}
	if err := tx.WithContext(ctx).Create(q).Error; err != nil {
		tb.Fatalf("seed question: %v", err)
	}
	return q
}

func SeedEnrollment(tb testing.TB, ctx context.Context, tx *gorm.DB, userID, versionID uuid.UUID) *types.Enrollment {
	tb.Helper()
	e := &types.Enrollment{
		ID:              uuid.New(),
		UserID:          userID,
		CourseVersionID: versionID,
		Status:          types.EnrollmentStatusInProgress,
	}
	if err := tx.WithContext(ctx).Create(e).Error; err != nil {
		tb.Fatalf("seed enrollment: %v", err)
	}
	return e
}
