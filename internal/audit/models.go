package audit

import "time"

// Event is an immutable, append-only audit log record.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor capture is best-effort; audit failures must not block the
//   verification flow they describe.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	// ActorUserID is the authenticated user causing the event.
	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`

	// Target identifiers (optional, depending on the event type).
	IncidentID string `json:"incident_id,omitempty" db:"incident_id"`

	// Status transition captured for verification events.
	FromStatus string `json:"from_status,omitempty" db:"from_status"`
	ToStatus   string `json:"to_status,omitempty" db:"to_status"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeVerification   EventType = "verification"
	EventTypeReconciliation EventType = "ledger_reconciliation"
)
