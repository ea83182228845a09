package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/requestdata"
	"github.com/lingopath/lingopath-backend/internal/services"
	"github.com/lingopath/lingopath-backend/internal/types"
)

type SessionHandler struct {
	log        *logger.Logger
	sessionSvc services.TestSessionService
}

func NewSessionHandler(log *logger.Logger, sessionSvc services.TestSessionService) *SessionHandler {
	return &SessionHandler{
		log:        log.With("handler", "SessionHandler"),
		sessionSvc: sessionSvc,
	}
}

// POST /api/lessons/:id/sessions
// Start a new test session for a lesson.
func (h *SessionHandler) StartSession(c *gin.Context) {
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

	view, err := h.sessionSvc.StartSession(c.Request.Context(), rd.UserID, lessonID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrLessonNotFound):
			RespondError(c, http.StatusNotFound, "lesson_not_found", err)
		case errors.Is(err, services.ErrNoQuestions):
			RespondError(c, http.StatusUnprocessableEntity, "lesson_has_no_questions", err)
		default:
			h.log.Error("StartSession failed", "error", err, "user_id", rd.UserID, "lesson_id", lessonID)
			RespondError(c, http.StatusInternalServerError, "start_session_failed", err)
		}
		return
	}
	c.JSON(http.StatusCreated, view)
}

// POST /api/sessions/:id/submit
// Submit answers for grading. Replaying a submit returns the current state.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_session_id", err)
		return
	}

	var body struct {
		Answers []types.AnswerInput `json:"answers"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		RespondError(c, http.StatusBadRequest, "bad_request_body", err)
		return
	}

	view, err := h.sessionSvc.SubmitSession(c.Request.Context(), rd.UserID, sessionID, body.Answers)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			RespondError(c, http.StatusNotFound, "session_not_found", err)
		case errors.Is(err, services.ErrNotSessionOwner):
			RespondError(c, http.StatusForbidden, "not_session_owner", err)
		default:
			h.log.Error("SubmitSession failed", "error", err, "user_id", rd.UserID, "session_id", sessionID)
			RespondError(c, http.StatusInternalServerError, "submit_session_failed", err)
		}
		return
	}
	RespondOK(c, view)
}

// GET /api/sessions/:id
// Fetch a session and its questions (answer keys withheld).
func (h *SessionHandler) GetSession(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_session_id", err)
		return
	}

	view, err := h.sessionSvc.GetSession(c.Request.Context(), rd.UserID, sessionID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrSessionNotFound):
			RespondError(c, http.StatusNotFound, "session_not_found", err)
		case errors.Is(err, services.ErrNotSessionOwner):
			RespondError(c, http.StatusForbidden, "not_session_owner", err)
		default:
			h.log.Error("GetSession failed", "error", err, "user_id", rd.UserID, "session_id", sessionID)
			RespondError(c, http.StatusInternalServerError, "get_session_failed", err)
		}
		return
	}
	RespondOK(c, view)
}
