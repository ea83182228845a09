package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/requestdata"
	"github.com/lingopath/lingopath-backend/internal/services"
)

type ProgressHandler struct {
	log       *logger.Logger
	ledgerSvc services.AttemptLedgerService
}

func NewProgressHandler(log *logger.Logger, ledgerSvc services.AttemptLedgerService) *ProgressHandler {
	return &ProgressHandler{
		log:       log.With("handler", "ProgressHandler"),
		ledgerSvc: ledgerSvc,
	}
}

// GET /api/lessons/:id/progress
// Best attempt so far for the caller on this lesson.
func (h *ProgressHandler) GetLessonProgress(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_lesson_id", err)
		return
	}

	progress, err := h.ledgerSvc.GetProgress(c.Request.Context(), rd.UserID, lessonID)
	if err != nil {
		h.log.Error("GetLessonProgress failed", "error", err, "user_id", rd.UserID, "lesson_id", lessonID)
		RespondError(c, http.StatusInternalServerError, "load_progress_failed", err)
		return
	}
	if progress == nil {
		RespondError(c, http.StatusNotFound, "progress_not_found", nil)
		return
	}
	RespondOK(c, gin.H{"progress": progress})
}

// GET /api/lessons/:id/wrong-answers
// Full wrong-answer trail for the caller on this lesson, oldest attempt first.
func (h *ProgressHandler) GetWrongAnswers(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	lessonID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_lesson_id", err)
		return
	}

	items, err := h.ledgerSvc.GetWrongAnswers(c.Request.Context(), rd.UserID, lessonID)
	if err != nil {
		h.log.Error("GetWrongAnswers failed", "error", err, "user_id", rd.UserID, "lesson_id", lessonID)
		RespondError(c, http.StatusInternalServerError, "load_wrong_answers_failed", err)
		return
	}
	RespondOK(c, gin.H{"items": items})
}
