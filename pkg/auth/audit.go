package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session audit actions
const (
	ActionLogin   = "session.login"
	ActionRefresh = "session.refresh"
	ActionRevoke  = "session.revoke"
	ActionIssue   = "session.issue"
)

// Status constants
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
	StatusDenied  = "denied"
)

// AuditEvent is one security-relevant session event
type AuditEvent struct {
	Action    string
	Status    string
	State     State
	UserID    *uuid.UUID
	TenantID  *uuid.UUID
	Login     string
	Reason    string
	CreatedAt time.Time
}

// AuditLogger writes session audit events to the structured log
type AuditLogger struct {
	logger logrus.FieldLogger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger logrus.FieldLogger) *AuditLogger {
	return &AuditLogger{logger: logger}
}

// LogAction logs an audit event
func (al *AuditLogger) LogAction(_ context.Context, event *AuditEvent) error {
	if event.Action == "" {
		return fmt.Errorf("action is required")
	}
	if event.Status == "" {
		return fmt.Errorf("status is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	fields := logrus.Fields{
		"audit":  true,
		"action": event.Action,
		"status": event.Status,
		"state":  event.State.String(),
	}
	if event.UserID != nil {
		fields["user_id"] = *event.UserID
	}
	if event.TenantID != nil {
		fields["tenant_id"] = *event.TenantID
	}
	if event.Login != "" {
		fields["login"] = event.Login
	}
	if event.Reason != "" {
		fields["reason"] = event.Reason
	}

	entry := al.logger.WithFields(fields).WithTime(event.CreatedAt)
	if event.Status == StatusSuccess {
		entry.Info("Session event")
	} else {
		entry.Warn("Session event")
	}
	return nil
}
