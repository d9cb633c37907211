package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo persists audit events in an INSERT-only table.
// No Update/Delete statements exist here on purpose.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
		INSERT INTO audit_events
			(id, type, actor_user_id, actor_role, incident_id, from_status, to_status, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		string(e.Type),
		nullable(e.ActorUserID),
		nullable(e.ActorRole),
		nullable(e.IncidentID),
		nullable(e.FromStatus),
		nullable(e.ToStatus),
		nullable(e.Message),
		nullable(e.Metadata),
		e.CreatedAt,
	)
	return err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
