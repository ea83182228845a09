package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/logger"
	"github.com/lingopath/lingopath-backend/internal/requestdata"
	"github.com/lingopath/lingopath-backend/internal/services"
)

type EnrollmentHandler struct {
	log     *logger.Logger
	syncSvc services.ProgressSyncService
}

func NewEnrollmentHandler(log *logger.Logger, syncSvc services.ProgressSyncService) *EnrollmentHandler {
	return &EnrollmentHandler{
		log:     log.With("handler", "EnrollmentHandler"),
		syncSvc: syncSvc,
	}
}

// GET /api/enrollments
// All enrollments of the caller with their rolled-up progress.
func (h *EnrollmentHandler) ListEnrollments(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	enrollments, err := h.syncSvc.ListEnrollments(c.Request.Context(), rd.UserID)
	if err != nil {
		h.log.Error("ListEnrollments failed", "error", err, "user_id", rd.UserID)
		RespondError(c, http.StatusInternalServerError, "load_enrollments_failed", err)
		return
	}
	RespondOK(c, gin.H{"enrollments": enrollments})
}

// POST /api/enrollments/:versionId/resync
// Force a full recomputation of the enrollment rollup.
func (h *EnrollmentHandler) ResyncEnrollment(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, http.StatusUnauthorized, "unauthorized", nil)
		return
	}
	versionID, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "bad_version_id", err)
		return
	}

	enrollment, err := h.syncSvc.ResyncEnrollment(c.Request.Context(), nil, rd.UserID, versionID)
	if err != nil {
		if errors.Is(err, services.ErrEnrollmentNotFound) {
			RespondError(c, http.StatusNotFound, "enrollment_not_found", err)
			return
		}
		h.log.Error("ResyncEnrollment failed", "error", err, "user_id", rd.UserID, "course_version_id", versionID)
		RespondError(c, http.StatusInternalServerError, "resync_failed", err)
		return
	}
	RespondOK(c, gin.H{"enrollment": enrollment})
}
