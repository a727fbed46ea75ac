package dispute

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested dispute does not exist.
var ErrNotFound = errors.New("dispute: not found")

// Repository provides read access to dispute rows. The dispute workflow
// itself lives in the external platform; this engine only queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a dispute by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Record, error) {
	const query = `
		SELECT id, deal_id, filer_address, respondent_address, reason, status::text, ruling, created_at, resolved_at
		FROM disputes
		WHERE id = $1
	`

	var rec Record
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&rec.ID, &rec.DealID, &rec.FilerAddress, &rec.RespondentAddress,
		&rec.Reason, &rec.Status, &rec.Ruling, &rec.CreatedAt, &rec.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("dispute: query by id: %w", err)
	}
	return rec, nil
}

// PendingOlderThan lists disputes still awaiting a first response that were
// opened before the cutoff.
func (r *Repository) PendingOlderThan(ctx context.Context, cutoff time.Time) ([]Record, error) {
	const query = `
		SELECT id, deal_id, filer_address, respondent_address, reason, status::text, ruling, created_at, resolved_at
		FROM disputes
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("dispute: list pending: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 8)
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID, &rec.DealID, &rec.FilerAddress, &rec.RespondentAddress,
			&rec.Reason, &rec.Status, &rec.Ruling, &rec.CreatedAt, &rec.ResolvedAt,
		); err != nil {
			return nil, fmt.Errorf("dispute: scan pending: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dispute: iterate pending: %w", err)
	}
	return out, nil
}

// ActiveCountForUser counts unresolved disputes where the address is filer
// or respondent.
func (r *Repository) ActiveCountForUser(ctx context.Context, addr string) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM disputes
		WHERE (filer_address = $1 OR respondent_address = $1)
		  AND status IN ('pending', 'mediation', 'arbitration')
	`

	var n int
	if err := r.pool.QueryRow(ctx, query, addr).Scan(&n); err != nil {
		return 0, fmt.Errorf("dispute: count active for user: %w", err)
	}
	return n, nil
}
