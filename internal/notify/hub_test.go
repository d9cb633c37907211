package notify

import (
	"errors"
	"testing"
	"time"

	"civicreport/internal/incident"
	"civicreport/internal/rbac"
)

type fakeConn struct {
	events []Event
	fail   bool
	closed bool
}

func (f *fakeConn) Send(e Event) error {
	if f.fail {
		return errors.New("fake: send failed")
	}
	f.events = append(f.events, e)
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

func verifiedIncident() incident.Incident {
	at := time.Unix(1700000000, 0).UTC()
	return incident.Incident{
		ID:          "i1",
		ReporterID:  "reporter-1",
		Category:    incident.CategoryFire,
		Title:       "warehouse fire",
		Description: "smoke visible from the highway",
		Location:    incident.Location{Address: "Accra"},
		Status:      incident.StatusVerified,
		CreatedAt:   at,
		VerifiedAt:  &at,
	}
}

func TestBroadcastVerified_ReachesAllConnections(t *testing.T) {
	hub := NewHub(nil)

	subscribed := &fakeConn{}
	anonymous := &fakeConn{}
	hub.Register(subscribed, Identity{UserID: "u1", Role: rbac.RoleCitizen})
	// No user or role: only the public channel plus the all-connections
	// fallback can reach this one.
	hub.Register(anonymous, Identity{})

	hub.BroadcastVerified(verifiedIncident())

	for name, conn := range map[string]*fakeConn{"subscribed": subscribed, "anonymous": anonymous} {
		if len(conn.events) != 1 {
			t.Fatalf("%s: expected exactly one event, got %d", name, len(conn.events))
		}
		if conn.events[0].Type != EventVerified {
			t.Fatalf("%s: expected verified event, got %s", name, conn.events[0].Type)
		}
	}
}

func TestBroadcastVerified_FallbackCoversStaleBookkeeping(t *testing.T) {
	hub := NewHub(nil)

	conn := &fakeConn{}
	hub.Register(conn, Identity{UserID: "u1"})

	// Simulate inconsistent channel state: the connection is alive but has
	// dropped out of the public channel. The all-connections fallback must
	// still deliver, exactly once.
	hub.mu.Lock()
	delete(hub.channels[ChannelPublicAlerts], conn)
	hub.mu.Unlock()

	hub.BroadcastVerified(verifiedIncident())

	if len(conn.events) != 1 {
		t.Fatalf("expected one fallback delivery, got %d", len(conn.events))
	}
}

func TestBroadcastVerified_FailingConnectionIsolated(t *testing.T) {
	hub := NewHub(nil)

	broken := &fakeConn{fail: true}
	healthy := &fakeConn{}
	hub.Register(broken, Identity{UserID: "u1"})
	hub.Register(healthy, Identity{UserID: "u2"})

	hub.BroadcastVerified(verifiedIncident())

	if len(healthy.events) != 1 {
		t.Fatalf("expected delivery to healthy connection, got %d events", len(healthy.events))
	}
}

func TestNotifyCreated_OnlyStaffRoles(t *testing.T) {
	hub := NewHub(nil)

	admin := &fakeConn{}
	authority := &fakeConn{}
	citizen := &fakeConn{}
	hub.Register(admin, Identity{UserID: "a1", Role: rbac.RoleAdmin})
	hub.Register(authority, Identity{UserID: "a2", Role: rbac.RoleAuthority})
	hub.Register(citizen, Identity{UserID: "c1", Role: rbac.RoleCitizen})

	inc := verifiedIncident()
	inc.Status = incident.StatusPending
	inc.VerifiedAt = nil
	hub.NotifyCreated(inc)

	if len(admin.events) != 1 || admin.events[0].Type != EventCreated {
		t.Fatalf("expected created event for admin, got %+v", admin.events)
	}
	if len(authority.events) != 1 {
		t.Fatalf("expected created event for authority, got %+v", authority.events)
	}
	if len(citizen.events) != 0 {
		t.Fatalf("unverified reports must not reach citizens, got %+v", citizen.events)
	}
}

func TestNotifyStatusUpdated_PrivateToReporter(t *testing.T) {
	hub := NewHub(nil)

	reporter := &fakeConn{}
	other := &fakeConn{}
	hub.Register(reporter, Identity{UserID: "reporter-1", Role: rbac.RoleCitizen})
	hub.Register(other, Identity{UserID: "u2", Role: rbac.RoleCitizen})

	inc := verifiedIncident()
	inc.Status = incident.StatusResolved
	inc.VerifiedAt = nil
	hub.NotifyStatusUpdated(inc, "admin-1")

	if len(reporter.events) != 1 || reporter.events[0].Type != EventStatusUpdated {
		t.Fatalf("expected private status event for reporter, got %+v", reporter.events)
	}
	if len(other.events) != 0 {
		t.Fatalf("non-VERIFIED status change must stay private, got %+v", other.events)
	}
}

func TestNotifyStatusUpdated_ExcludesActingReporter(t *testing.T) {
	hub := NewHub(nil)

	reporter := &fakeConn{}
	hub.Register(reporter, Identity{UserID: "reporter-1", Role: rbac.RoleCitizen})

	inc := verifiedIncident()
	inc.Status = incident.StatusResolved
	inc.VerifiedAt = nil
	hub.NotifyStatusUpdated(inc, "reporter-1")

	if len(reporter.events) != 0 {
		t.Fatalf("actor must not be notified of their own change, got %+v", reporter.events)
	}
}

func TestNotifyStatusUpdated_VerifiedGoesPublicAndPrivate(t *testing.T) {
	hub := NewHub(nil)

	reporter := &fakeConn{}
	bystander := &fakeConn{}
	hub.Register(reporter, Identity{UserID: "reporter-1"})
	hub.Register(bystander, Identity{UserID: "u2"})

	hub.NotifyStatusUpdated(verifiedIncident(), "admin-1")

	if len(bystander.events) != 1 || bystander.events[0].Type != EventVerified {
		t.Fatalf("expected public verified event, got %+v", bystander.events)
	}
	// Reporter sees the broadcast plus a private status event.
	if len(reporter.events) != 2 {
		t.Fatalf("expected broadcast and private event for reporter, got %+v", reporter.events)
	}
	if reporter.events[1].Type != EventStatusUpdated {
		t.Fatalf("expected trailing private event, got %s", reporter.events[1].Type)
	}
}

func TestEventPayloadOmitsReporter(t *testing.T) {
	hub := NewHub(nil)

	conn := &fakeConn{}
	hub.Register(conn, Identity{UserID: "u1"})

	hub.BroadcastVerified(verifiedIncident())

	got := conn.events[0].Incident
	if got.ID != "i1" || got.Title != "warehouse fire" || got.Status != "VERIFIED" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	// The payload type carries no reporter field; check the serialized
	// fields that are present instead.
	if got.Address != "Accra" || got.VerifiedAt == nil {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestUnregister_StopsDelivery(t *testing.T) {
	hub := NewHub(nil)

	conn := &fakeConn{}
	hub.Register(conn, Identity{UserID: "u1"})
	hub.Unregister(conn)
	hub.Unregister(conn)

	hub.BroadcastVerified(verifiedIncident())
	if len(conn.events) != 0 {
		t.Fatalf("expected no delivery after unregister, got %+v", conn.events)
	}
}

func TestShutdown_ClosesConnections(t *testing.T) {
	hub := NewHub(nil)

	a := &fakeConn{}
	b := &fakeConn{}
	hub.Register(a, Identity{UserID: "u1"})
	hub.Register(b, Identity{UserID: "u2"})

	hub.Shutdown()

	if !a.closed || !b.closed {
		t.Fatalf("expected all connections closed")
	}
	hub.BroadcastVerified(verifiedIncident())
	if len(a.events) != 0 {
		t.Fatalf("expected no delivery after shutdown")
	}
}
