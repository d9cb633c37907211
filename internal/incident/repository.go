package incident

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("incident: not found")
	ErrInvalidArgument = errors.New("incident: invalid argument")
)

// Repository abstracts durable incident storage.
//
// All anchoring writes are field-scoped by contract: a status update racing a
// late anchoring callback must never clobber unrelated fields, so
// implementations update exactly the named columns and nothing else.
type Repository interface {
	Create(ctx context.Context, inc Incident) error
	FindByID(ctx context.Context, id string) (Incident, error)
	FindByFilter(ctx context.Context, f Filter) ([]Incident, error)

	// SetHash persists the fingerprint. The hash is immutable after set.
	SetHash(ctx context.Context, id, hash string) error

	// SetAnchor persists ledger identifiers only if LedgerTxID is still
	// absent (compare-and-swap). Returns false when another writer won the
	// race; the duplicate submission is benign and must be ignored.
	SetAnchor(ctx context.Context, id, txID, recordID string) (bool, error)

	// SetLedgerTxID refreshes the transaction id after a ledger-side status
	// update. Last-write-wins.
	SetLedgerTxID(ctx context.Context, id, txID string) error

	// UpdateStatus writes status, verifiedBy, verifiedAt and notes as one
	// atomic group. verifiedBy/verifiedAt are overwritten on every
	// transition, never accumulated.
	UpdateStatus(ctx context.Context, id string, status Status, verifiedBy string, verifiedAt time.Time, notes string) error

	// FindUnanchored returns incidents with a hash but no ledger tx id,
	// bounded to limit, in no particular order.
	FindUnanchored(ctx context.Context, limit int) ([]Incident, error)
}
