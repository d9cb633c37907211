package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to citizens by default.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogVerification records who moved an incident between statuses.
func (s *Service) LogVerification(ctx context.Context, actorID, actorRole, incidentID, fromStatus, toStatus, notes string) error {
	if incidentID == "" {
		return ErrInvalidEvent
	}
	return s.Append(ctx, Event{
		Type:        EventTypeVerification,
		ActorUserID: actorID,
		ActorRole:   actorRole,
		IncidentID:  incidentID,
		FromStatus:  fromStatus,
		ToStatus:    toStatus,
		Message:     notes,
	})
}

// LogReconciliation records an operator-triggered ledger sweep.
func (s *Service) LogReconciliation(ctx context.Context, actorID, actorRole, summary string) error {
	return s.Append(ctx, Event{
		Type:        EventTypeReconciliation,
		ActorUserID: actorID,
		ActorRole:   actorRole,
		Message:     "ledger reconciliation",
		Metadata:    summary,
	})
}
