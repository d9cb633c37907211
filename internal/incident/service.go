package incident

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("incident: invalid status transition")

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxNotesLen       = 1000
)

// Anchorer receives incident lifecycle events and mirrors them to the
// external ledger. Calls must never block on or propagate ledger failures;
// the primary write is the unit of user-visible success.
type Anchorer interface {
	OnCreated(ctx context.Context, inc Incident)
	OnStatusChanged(ctx context.Context, inc Incident, newStatus Status)
}

// Notifier fans state-change events out to connected clients. Best-effort.
type Notifier interface {
	NotifyCreated(inc Incident)
	NotifyStatusUpdated(inc Incident, excludeUserID string)
}

// Auditor records verification decisions. Best-effort; failures never block
// the primary write.
type Auditor interface {
	LogVerification(ctx context.Context, actorID, actorRole, incidentID, fromStatus, toStatus, notes string) error
}

// Service owns the incident verification workflow. Anchoring and
// notification are side effects dispatched after the durable write; their
// failures stay out of the caller's error path.
type Service struct {
	repo   Repository
	anchor Anchorer
	notify Notifier
	audit  Auditor
	clock  func() time.Time
	newID  func() string
}

func NewService(repo Repository, anchor Anchorer, notify Notifier, audit Auditor) *Service {
	return &Service{
		repo:   repo,
		anchor: anchor,
		notify: notify,
		audit:  audit,
		clock:  time.Now,
		newID:  uuid.NewString,
	}
}

type ReportRequest struct {
	ReporterID  string   `json:"reporter_id"`
	Category    Category `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Location    Location `json:"location"`
}

func (s *Service) Report(ctx context.Context, req ReportRequest) (Incident, error) {
	if s.repo == nil {
		return Incident{}, errors.New("incident: repository not configured")
	}
	if req.ReporterID == "" || req.Title == "" {
		return Incident{}, ErrInvalidArgument
	}
	if !req.Category.Valid() {
		return Incident{}, ErrInvalidArgument
	}
	if len(req.Title) > maxTitleLen || len(req.Description) > maxDescriptionLen {
		return Incident{}, ErrInvalidArgument
	}

	inc := Incident{
		ID:          s.newID(),
		ReporterID:  req.ReporterID,
		Category:    req.Category,
		Title:       req.Title,
		Description: req.Description,
		Location:    req.Location,
		CreatedAt:   s.clock().UTC(),
		Status:      StatusPending,
	}
	if err := s.repo.Create(ctx, inc); err != nil {
		return Incident{}, err
	}

	// The coordinator persists the hash synchronously and submits to the
	// ledger on its own goroutine; neither outcome affects this response.
	if s.anchor != nil {
		s.anchor.OnCreated(ctx, inc)
	}
	if s.notify != nil {
		s.notify.NotifyCreated(inc)
	}

	// Re-read so the response carries the persisted hash.
	out, err := s.repo.FindByID(ctx, inc.ID)
	if err != nil {
		return inc, nil
	}
	return out, nil
}

type StatusChangeRequest struct {
	Status    Status `json:"status"`
	ActorID   string `json:"-"`
	ActorRole string `json:"-"`
	Notes     string `json:"notes,omitempty"`
}

func (s *Service) SetStatus(ctx context.Context, id string, req StatusChangeRequest) (Incident, error) {
	if s.repo == nil {
		return Incident{}, errors.New("incident: repository not configured")
	}
	if id == "" || req.ActorID == "" {
		return Incident{}, ErrInvalidArgument
	}
	// PENDING is a birth state, never a transition target.
	if !req.Status.Valid() || req.Status == StatusPending {
		return Incident{}, ErrInvalidTransition
	}
	if len(req.Notes) > maxNotesLen {
		return Incident{}, ErrInvalidArgument
	}

	cur, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Incident{}, err
	}

	now := s.clock().UTC()
	if err := s.repo.UpdateStatus(ctx, id, req.Status, req.ActorID, now, req.Notes); err != nil {
		return Incident{}, err
	}

	updated := cur
	updated.Status = req.Status
	updated.VerifiedBy = req.ActorID
	updated.VerifiedAt = &now
	updated.VerificationNotes = req.Notes

	if s.audit != nil {
		// Best-effort; the status write already succeeded.
		_ = s.audit.LogVerification(ctx, req.ActorID, req.ActorRole, id, string(cur.Status), string(req.Status), req.Notes)
	}
	if s.anchor != nil {
		s.anchor.OnStatusChanged(ctx, updated, req.Status)
	}
	if s.notify != nil {
		s.notify.NotifyStatusUpdated(updated, req.ActorID)
	}

	return updated, nil
}

func (s *Service) Get(ctx context.Context, id string) (Incident, error) {
	if id == "" {
		return Incident{}, ErrInvalidArgument
	}
	return s.repo.FindByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Incident, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, ErrInvalidArgument
	}
	if f.Category != "" && !f.Category.Valid() {
		return nil, ErrInvalidArgument
	}
	return s.repo.FindByFilter(ctx, f)
}
