package incident

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeAnchorer struct {
	created []Incident
	changed []Incident
}

func (f *fakeAnchorer) OnCreated(ctx context.Context, inc Incident) {
	f.created = append(f.created, inc)
}

func (f *fakeAnchorer) OnStatusChanged(ctx context.Context, inc Incident, newStatus Status) {
	f.changed = append(f.changed, inc)
}

type fakeNotifier struct {
	created  []Incident
	updated  []Incident
	excluded []string
}

func (f *fakeNotifier) NotifyCreated(inc Incident) { f.created = append(f.created, inc) }

func (f *fakeNotifier) NotifyStatusUpdated(inc Incident, excludeUserID string) {
	f.updated = append(f.updated, inc)
	f.excluded = append(f.excluded, excludeUserID)
}

type fakeAuditor struct {
	calls int
	fail  bool
	last  string
}

func (f *fakeAuditor) LogVerification(ctx context.Context, actorID, actorRole, incidentID, fromStatus, toStatus, notes string) error {
	f.calls++
	f.last = fromStatus + "->" + toStatus
	if f.fail {
		return errors.New("audit down")
	}
	return nil
}

func newTestService() (*Service, *MemoryRepo, *fakeAnchorer, *fakeNotifier, *fakeAuditor) {
	repo := NewMemoryRepo()
	anchor := &fakeAnchorer{}
	notify := &fakeNotifier{}
	audit := &fakeAuditor{}
	svc := NewService(repo, anchor, notify, audit)
	svc.clock = func() time.Time { return time.Unix(1700000000, 0).UTC() }
	next := 0
	svc.newID = func() string { next++; return "i" + string(rune('0'+next)) }
	return svc, repo, anchor, notify, audit
}

func validReport() ReportRequest {
	return ReportRequest{
		ReporterID:  "reporter-1",
		Category:    CategoryAccident,
		Title:       "collision at main junction",
		Description: "two vehicles, traffic blocked",
		Location:    Location{Address: "Accra"},
	}
}

func TestReport_CreatesPendingIncident(t *testing.T) {
	svc, repo, anchor, notify, _ := newTestService()

	got, err := svc.Report(context.Background(), validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}
	if got.Status != StatusPending {
		t.Fatalf("new incidents must start PENDING, got %s", got.Status)
	}
	if got.ID == "" || !got.CreatedAt.Equal(time.Unix(1700000000, 0).UTC()) {
		t.Fatalf("unexpected identity fields: %+v", got)
	}

	stored, err := repo.FindByID(context.Background(), got.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.ReporterID != "reporter-1" {
		t.Fatalf("unexpected stored incident: %+v", stored)
	}
	if len(anchor.created) != 1 || len(notify.created) != 1 {
		t.Fatalf("expected anchoring and notification dispatched")
	}
}

func TestReport_Validation(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	cases := map[string]ReportRequest{
		"no reporter":    func() ReportRequest { r := validReport(); r.ReporterID = ""; return r }(),
		"no title":       func() ReportRequest { r := validReport(); r.Title = ""; return r }(),
		"bad category":   func() ReportRequest { r := validReport(); r.Category = "EXPLOSION"; return r }(),
		"title too long": func() ReportRequest { r := validReport(); r.Title = strings.Repeat("t", 201); return r }(),
		"desc too long":  func() ReportRequest { r := validReport(); r.Description = strings.Repeat("d", 5001); return r }(),
		"empty category": func() ReportRequest { r := validReport(); r.Category = ""; return r }(),
	}
	for name, req := range cases {
		if _, err := svc.Report(context.Background(), req); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("%s: expected ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestSetStatus_RejectsPendingTarget(t *testing.T) {
	svc, _, anchor, _, audit := newTestService()

	created, err := svc.Report(context.Background(), validReport())
	if err != nil {
		t.Fatalf("report: %v", err)
	}

	_, err = svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: StatusPending, ActorID: "admin-1", ActorRole: "admin",
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: "BOGUS", ActorID: "admin-1",
	}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for unknown status, got %v", err)
	}
	if audit.calls != 0 || len(anchor.changed) != 0 {
		t.Fatalf("rejected transitions must have no side effects")
	}
}

func TestSetStatus_VerifiesAndDispatchesSideEffects(t *testing.T) {
	svc, repo, anchor, notify, audit := newTestService()

	created, _ := svc.Report(context.Background(), validReport())

	got, err := svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: StatusVerified, ActorID: "authority-1", ActorRole: "authority", Notes: "confirmed on site",
	})
	if err != nil {
		t.Fatalf("set status: %v", err)
	}
	if got.Status != StatusVerified || got.VerifiedBy != "authority-1" || got.VerifiedAt == nil {
		t.Fatalf("unexpected result: %+v", got)
	}

	stored, _ := repo.FindByID(context.Background(), created.ID)
	if stored.Status != StatusVerified || stored.VerificationNotes != "confirmed on site" {
		t.Fatalf("status not persisted: %+v", stored)
	}

	if audit.calls != 1 || audit.last != "PENDING->VERIFIED" {
		t.Fatalf("expected one audit entry, got %d (%s)", audit.calls, audit.last)
	}
	if len(anchor.changed) != 1 || anchor.changed[0].Status != StatusVerified {
		t.Fatalf("expected anchor dispatch with updated incident")
	}
	if len(notify.updated) != 1 || notify.excluded[0] != "authority-1" {
		t.Fatalf("expected notification excluding the actor")
	}
}

func TestSetStatus_ReverificationOverwritesVerifier(t *testing.T) {
	svc, repo, _, _, _ := newTestService()

	created, _ := svc.Report(context.Background(), validReport())
	if _, err := svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: StatusVerified, ActorID: "authority-1", ActorRole: "authority",
	}); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: StatusResolved, ActorID: "admin-2", ActorRole: "admin", Notes: "situation cleared",
	}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	stored, _ := repo.FindByID(context.Background(), created.ID)
	if stored.Status != StatusResolved || stored.VerifiedBy != "admin-2" {
		t.Fatalf("later decision must overwrite verifier, got %+v", stored)
	}
	if stored.VerificationNotes != "situation cleared" {
		t.Fatalf("notes not overwritten: %+v", stored)
	}
}

func TestSetStatus_AuditFailureDoesNotBlock(t *testing.T) {
	svc, _, _, _, audit := newTestService()
	audit.fail = true

	created, _ := svc.Report(context.Background(), validReport())
	if _, err := svc.SetStatus(context.Background(), created.ID, StatusChangeRequest{
		Status: StatusFalse, ActorID: "admin-1", ActorRole: "admin",
	}); err != nil {
		t.Fatalf("audit failure must not surface: %v", err)
	}
}

func TestSetStatus_UnknownIncident(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	_, err := svc.SetStatus(context.Background(), "missing", StatusChangeRequest{
		Status: StatusVerified, ActorID: "admin-1",
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestList_FilterAndPagination(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	for i := 0; i < 3; i++ {
		req := validReport()
		if i == 2 {
			req.Category = CategoryFlood
		}
		if _, err := svc.Report(context.Background(), req); err != nil {
			t.Fatalf("report: %v", err)
		}
	}

	floods, err := svc.List(context.Background(), Filter{Category: CategoryFlood})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(floods) != 1 {
		t.Fatalf("expected 1 flood incident, got %d", len(floods))
	}

	page, err := svc.List(context.Background(), Filter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}

	if _, err := svc.List(context.Background(), Filter{Status: "BOGUS"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad status filter, got %v", err)
	}
}
