package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/lingopath/lingopath-backend/internal/types"
)

// SessionNotifier pushes grading lifecycle events to the session owner.
// Notifications are fire-and-forget: a nil bus or a publish failure never
// blocks grading.
type SessionNotifier interface {
	GradingQueued(userID uuid.UUID, session *types.TestSession)
	SessionCompleted(userID uuid.UUID, session *types.TestSession)
	GradingFailed(userID uuid.UUID, sessionID uuid.UUID, message string)
	EnrollmentSynced(userID uuid.UUID, enrollment *types.Enrollment)
}

type sessionNotifier struct {
	bus EventBus
}

func NewSessionNotifier(bus EventBus) SessionNotifier {
	return &sessionNotifier{bus: bus}
}

func (n *sessionNotifier) GradingQueued(userID uuid.UUID, session *types.TestSession) {
	if n == nil || n.bus == nil || userID == uuid.Nil {
		return
	}
	_ = n.bus.Publish(context.Background(), EventMessage{
		Channel: userID.String(),
		Event:   EventSessionGradingQueued,
		Data:    map[string]any{"session": session},
	})
}

func (n *sessionNotifier) SessionCompleted(userID uuid.UUID, session *types.TestSession) {
	if n == nil || n.bus == nil || userID == uuid.Nil {
		return
	}
	_ = n.bus.Publish(context.Background(), EventMessage{
		Channel: userID.String(),
		Event:   EventSessionCompleted,
		Data:    map[string]any{"session": session},
	})
}

func (n *sessionNotifier) GradingFailed(userID uuid.UUID, sessionID uuid.UUID, message string) {
	if n == nil || n.bus == nil || userID == uuid.Nil {
		return
	}
	_ = n.bus.Publish(context.Background(), EventMessage{
		Channel: userID.String(),
		Event:   EventSessionGradingFailed,
		Data: map[string]any{
			"session_id": sessionID,
			"error":      message,
		},
	})
}

func (n *sessionNotifier) EnrollmentSynced(userID uuid.UUID, enrollment *types.Enrollment) {
	if n == nil || n.bus == nil || userID == uuid.Nil {
		return
	}
	_ = n.bus.Publish(context.Background(), EventMessage{
		Channel: userID.String(),
		Event:   EventEnrollmentSynced,
		Data:    map[string]any{"enrollment": enrollment},
	})
}
