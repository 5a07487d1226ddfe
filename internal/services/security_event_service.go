package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/chatforge/authkit/internal/models"
	"github.com/chatforge/authkit/pkg/logger"
)

// SecurityEventRepositoryInterface defines the interface for the append-only
// audit store
type SecurityEventRepositoryInterface interface {
	Create(ctx context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error)
	Query(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error)
}

// SecurityEventRecorder is the write-side dependency other services take.
// Recording must never fail a caller's operation, so the interface returns
// nothing.
type SecurityEventRecorder interface {
	Record(ctx context.Context, event *models.SecurityEvent)
}

// SecurityEventService appends audit events and serves audit queries. Events
// are immutable once written; no update or delete exists anywhere in the
// call graph.
type SecurityEventService struct {
	repo   SecurityEventRepositoryInterface
	audit  *logger.AuditLogger
	logger *slog.Logger
}

// NewSecurityEventService creates a new SecurityEventService
func NewSecurityEventService(repo SecurityEventRepositoryInterface, audit *logger.AuditLogger, logger *slog.Logger) *SecurityEventService {
	return &SecurityEventService{
		repo:   repo,
		audit:  audit,
		logger: logger,
	}
}

// Record appends an event to the audit trail and mirrors it to the audit
// log stream. A storage failure is logged and swallowed: the audit trail is
// best-effort from the caller's perspective, and an event write must never
// roll back a completed login or logout.
func (s *SecurityEventService) Record(ctx context.Context, event *models.SecurityEvent) {
	if _, err := s.repo.Create(ctx, event); err != nil {
		s.logger.Error("failed to record security event",
			slog.String("event_type", event.EventType),
			slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(auditEventFrom(event))
}

// Query returns events matching the filter, newest first
func (s *SecurityEventService) Query(ctx context.Context, filter models.EventFilter) ([]*models.SecurityEvent, error) {
	events, err := s.repo.Query(ctx, filter)
	if err != nil {
		s.logger.Error("failed to query security events", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return events, nil
}

func auditEventFrom(event *models.SecurityEvent) logger.AuditEvent {
	metadata := make(map[string]string, len(event.Details))
	for key, val := range event.Details {
		metadata[key] = fmt.Sprintf("%v", val)
	}

	ae := logger.AuditEvent{
		EventType: event.EventType,
		Success:   event.Success,
		Metadata:  metadata,
	}
	if event.UserID != nil {
		ae.UserID = *event.UserID
	}
	if event.SessionID != nil {
		ae.SessionID = *event.SessionID
	}
	if event.IPAddress != nil {
		ae.IPAddress = *event.IPAddress
	}
	if event.UserAgent != nil {
		ae.UserAgent = *event.UserAgent
	}
	return ae
}
