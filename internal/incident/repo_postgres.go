package incident

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes an `incidents` table with one row per report.
// Anchoring columns (incident_hash, ledger_tx_id, ledger_record_id) are
// nullable and written by field-scoped UPDATEs only, so a status update
// racing a late anchoring callback cannot clobber unrelated fields.
//
// Expected uniqueness: PRIMARY KEY (id).

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const incidentColumns = `
id, reporter_id, category, title, description, address, lat, lng, created_at,
status, verified_by, verified_at, verification_notes,
incident_hash, ledger_tx_id, ledger_record_id
`

func (r *PostgresRepo) Create(ctx context.Context, inc Incident) error {
	const q = `
INSERT INTO incidents (
  id, reporter_id, category, title, description, address, lat, lng, created_at, status
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
`
	_, err := r.db.ExecContext(ctx, q,
		inc.ID,
		inc.ReporterID,
		string(inc.Category),
		inc.Title,
		inc.Description,
		inc.Location.Address,
		inc.Location.Lat,
		inc.Location.Lng,
		inc.CreatedAt,
		string(inc.Status),
	)
	return err
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (Incident, error) {
	const q = `
SELECT ` + incidentColumns + `
FROM incidents
WHERE id = $1
`
	return scanIncident(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByFilter(ctx context.Context, f Filter) ([]Incident, error) {
	// Filters are optional; empty values disable the corresponding predicate.
	const q = `
SELECT ` + incidentColumns + `
FROM incidents
WHERE ($1 = '' OR status = $1)
  AND ($2 = '' OR category = $2)
  AND ($3 = '' OR reporter_id = $3)
ORDER BY created_at DESC
LIMIT $4 OFFSET $5
`
	limit, offset := f.limitOffset()
	rows, err := r.db.QueryContext(ctx, q, string(f.Status), string(f.Category), f.ReporterID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) SetHash(ctx context.Context, id, hash string) error {
	const q = `
UPDATE incidents
SET incident_hash = $2
WHERE id = $1 AND incident_hash IS NULL
`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return err
	}
	// A zero-row update here means either a missing incident or a hash that
	// is already set; the latter is a no-op by contract.
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		if _, ferr := r.FindByID(ctx, id); ferr != nil {
			return ferr
		}
	}
	return nil
}

func (r *PostgresRepo) SetAnchor(ctx context.Context, id, txID, recordID string) (bool, error) {
	// Compare-and-swap on "not yet anchored": the predicate re-checks
	// ledger_tx_id inside the UPDATE so a racing sweep and organic callback
	// cannot both win.
	const q = `
UPDATE incidents
SET ledger_tx_id = $2, ledger_record_id = $3
WHERE id = $1 AND ledger_tx_id IS NULL
`
	res, err := r.db.ExecContext(ctx, q, id, txID, recordID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		if _, ferr := r.FindByID(ctx, id); ferr != nil {
			return false, ferr
		}
		return false, nil
	}
	return true, nil
}

func (r *PostgresRepo) SetLedgerTxID(ctx context.Context, id, txID string) error {
	const q = `
UPDATE incidents
SET ledger_tx_id = $2
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, txID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, id string, status Status, verifiedBy string, verifiedAt time.Time, notes string) error {
	const q = `
UPDATE incidents
SET status = $2, verified_by = $3, verified_at = $4, verification_notes = $5
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, string(status), verifiedBy, verifiedAt, notes)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) FindUnanchored(ctx context.Context, limit int) ([]Incident, error) {
	const q = `
SELECT ` + incidentColumns + `
FROM incidents
WHERE incident_hash IS NOT NULL AND ledger_tx_id IS NULL
LIMIT $1
`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIncident(row rowScanner) (Incident, error) {
	var (
		inc        Incident
		category   string
		status     string
		lat, lng   sql.NullFloat64
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
		notes      sql.NullString
		hash       sql.NullString
		txID       sql.NullString
		recordID   sql.NullString
	)
	err := row.Scan(
		&inc.ID,
		&inc.ReporterID,
		&category,
		&inc.Title,
		&inc.Description,
		&inc.Location.Address,
		&lat,
		&lng,
		&inc.CreatedAt,
		&status,
		&verifiedBy,
		&verifiedAt,
		&notes,
		&hash,
		&txID,
		&recordID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Incident{}, ErrNotFound
		}
		return Incident{}, err
	}

	inc.Category = Category(category)
	inc.Status = Status(status)
	if lat.Valid {
		v := lat.Float64
		inc.Location.Lat = &v
	}
	if lng.Valid {
		v := lng.Float64
		inc.Location.Lng = &v
	}
	inc.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		t := verifiedAt.Time
		inc.VerifiedAt = &t
	}
	inc.VerificationNotes = notes.String
	inc.IncidentHash = hash.String
	inc.LedgerTxID = txID.String
	inc.LedgerRecordID = recordID.String
	return inc, nil
}
