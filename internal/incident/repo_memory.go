package incident

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is a simple in-memory incident repository for tests and early
// development. Writes are field-scoped to mirror the SQL implementation.

type MemoryRepo struct {
	mu        sync.Mutex
	incidents map[string]Incident
	order     []string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{incidents: map[string]Incident{}}
}

func (r *MemoryRepo) Create(ctx context.Context, inc Incident) error {
	if inc.ID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.incidents[inc.ID]; ok {
		return ErrInvalidArgument
	}
	r.incidents[inc.ID] = inc
	r.order = append(r.order, inc.ID)
	return nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return Incident{}, ErrNotFound
	}
	return inc, nil
}

func (r *MemoryRepo) FindByFilter(ctx context.Context, f Filter) ([]Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]Incident, 0)
	for _, id := range r.order {
		inc := r.incidents[id]
		if f.Status != "" && inc.Status != f.Status {
			continue
		}
		if f.Category != "" && inc.Category != f.Category {
			continue
		}
		if f.ReporterID != "" && inc.ReporterID != f.ReporterID {
			continue
		}
		matched = append(matched, inc)
	}

	limit, offset := f.limitOffset()
	if offset >= len(matched) {
		return []Incident{}, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (r *MemoryRepo) SetHash(ctx context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return ErrNotFound
	}
	inc.IncidentHash = hash
	r.incidents[id] = inc
	return nil
}

func (r *MemoryRepo) SetAnchor(ctx context.Context, id, txID, recordID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return false, ErrNotFound
	}
	if inc.LedgerTxID != "" {
		return false, nil
	}
	inc.LedgerTxID = txID
	inc.LedgerRecordID = recordID
	r.incidents[id] = inc
	return true, nil
}

func (r *MemoryRepo) SetLedgerTxID(ctx context.Context, id, txID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return ErrNotFound
	}
	inc.LedgerTxID = txID
	r.incidents[id] = inc
	return nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, id string, status Status, verifiedBy string, verifiedAt time.Time, notes string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inc, ok := r.incidents[id]
	if !ok {
		return ErrNotFound
	}
	inc.Status = status
	inc.VerifiedBy = verifiedBy
	inc.VerifiedAt = &verifiedAt
	inc.VerificationNotes = notes
	r.incidents[id] = inc
	return nil
}

func (r *MemoryRepo) FindUnanchored(ctx context.Context, limit int) ([]Incident, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Incident, 0)
	for _, id := range r.order {
		if limit > 0 && len(out) >= limit {
			break
		}
		inc := r.incidents[id]
		if inc.IncidentHash != "" && inc.LedgerTxID == "" {
			out = append(out, inc)
		}
	}
	return out, nil
}
