package ledger

import (
	"context"
	"errors"
	"time"
)

// Client is the capability consumed by the anchoring pipeline.
//
// Rules:
// - No ledger SDK or wire shapes outside this package; each operation has a
//   narrow result type translated at the boundary.
// - Every operation is a remote call: slow, fallible, possibly unconfigured.
// - All operations are safe to retry; the caller never assumes exactly-once
//   execution on the ledger side.
type Client interface {
	Name() string

	// Submit anchors a fingerprint with an initial status and returns the
	// ledger transaction and record identifiers.
	Submit(ctx context.Context, hash, initialStatus string) (SubmitResult, error)

	// UpdateStatus pushes a new status for an existing ledger record and
	// returns the transaction id of the update.
	UpdateStatus(ctx context.Context, recordID, newStatus string) (string, error)

	// FetchRecord returns the ledger-side record, or ErrRecordNotFound.
	FetchRecord(ctx context.Context, recordID string) (Record, error)

	// VerifyTransaction reports whether a transaction is confirmed on the
	// ledger.
	VerifyTransaction(ctx context.Context, txID string) (bool, error)
}

var (
	// ErrNotConfigured means the client has no endpoint or credentials.
	// Callers must treat it as a permanent failure: short-circuit, no
	// network I/O, no retry.
	ErrNotConfigured = errors.New("ledger: client not configured")

	ErrRecordNotFound = errors.New("ledger: record not found")
)

type SubmitResult struct {
	TxID     string
	RecordID string
}

type Record struct {
	RecordID   string
	Hash       string
	Status     string
	TxID       string
	AnchoredAt time.Time
}
