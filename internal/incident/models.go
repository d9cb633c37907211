package incident

import "time"

// Status is the verification state of an incident.
//
// Transitions: PENDING -> {VERIFIED, FALSE, RESOLVED}; once out of PENDING
// the status may still move among VERIFIED/FALSE/RESOLVED (re-verification).
// PENDING is never a valid transition target.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusVerified Status = "VERIFIED"
	StatusFalse    Status = "FALSE"
	StatusResolved Status = "RESOLVED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusVerified, StatusFalse, StatusResolved:
		return true
	default:
		return false
	}
}

// Category classifies a report. The set is fixed; free-form detail belongs
// in the description.
type Category string

const (
	CategoryMissingPerson Category = "MISSING_PERSON"
	CategoryCrime         Category = "CRIME"
	CategoryAccident      Category = "ACCIDENT"
	CategoryFire          Category = "FIRE"
	CategoryFlood         Category = "FLOOD"
	CategoryHealth        Category = "HEALTH"
	CategoryOther         Category = "OTHER"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryMissingPerson, CategoryCrime, CategoryAccident,
		CategoryFire, CategoryFlood, CategoryHealth, CategoryOther:
		return true
	default:
		return false
	}
}

// Location is a free-text address plus optional coordinates.
type Location struct {
	Address string   `json:"address"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// Incident is the unit of work moving through the verification workflow.
//
// Invariants:
// - Identity and content fields (ReporterID, Category, Title, Description,
//   Location, CreatedAt) are immutable after creation.
// - IncidentHash is computed from immutable content only, never from
//   verification state, so it stays comparable against the ledger.
// - LedgerTxID may be absent indefinitely; anchoring is best-effort and never
//   blocks incident operations.
// - LedgerRecordID, once set, is permanent and required for any ledger-side
//   status update.
type Incident struct {
	ID          string    `json:"id" db:"id"`
	ReporterID  string    `json:"reporter_id" db:"reporter_id"`
	Category    Category  `json:"category" db:"category"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Location    Location  `json:"location"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`

	Status            Status     `json:"status" db:"status"`
	VerifiedBy        string     `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt        *time.Time `json:"verified_at,omitempty" db:"verified_at"`
	VerificationNotes string     `json:"verification_notes,omitempty" db:"verification_notes"`

	IncidentHash   string `json:"incident_hash,omitempty" db:"incident_hash"`
	LedgerTxID     string `json:"ledger_tx_id,omitempty" db:"ledger_tx_id"`
	LedgerRecordID string `json:"ledger_record_id,omitempty" db:"ledger_record_id"`
}

// Anchored reports whether a ledger submission has durably succeeded.
func (i Incident) Anchored() bool { return i.LedgerTxID != "" }

// Filter narrows FindByFilter queries. Zero values mean "no constraint".
type Filter struct {
	Status     Status
	Category   Category
	ReporterID string

	Page     int
	PageSize int
}

func (f Filter) limitOffset() (limit, offset int) {
	size := f.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	page := f.Page
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size
}
