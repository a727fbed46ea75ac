package deal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested deal does not exist.
var ErrNotFound = errors.New("deal: not found")

// Repository provides read-only access to deals, milestones, messages and
// timeline events. The engine never writes to any of these tables.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID fetches a deal snapshot by its primary key.
func (r *Repository) GetByID(ctx context.Context, id string) (Deal, error) {
	const query = `
		SELECT id, reference, title, buyer_address, seller_address, total_amount, stage::text, created_at
		FROM deals
		WHERE id = $1
	`

	var d Deal
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&d.ID,
		&d.Reference,
		&d.Title,
		&d.BuyerAddress,
		&d.SellerAddress,
		&d.TotalAmount,
		&d.Stage,
		&d.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Deal{}, ErrNotFound
		}
		return Deal{}, fmt.Errorf("deal: query by id: %w", err)
	}

	return d, nil
}

// MilestonesDueWithin lists pending or in-progress milestones due between now
// and now+window whose parent deal is still live, joined with the deal
// context reminders need.
func (r *Repository) MilestonesDueWithin(ctx context.Context, now time.Time, window time.Duration) ([]DueMilestone, error) {
	const query = `
		SELECT m.id, m.deal_id, m.description, m.amount, m.due_date, m.status::text, m.created_at,
		       d.reference, d.title, d.seller_address
		FROM milestones m
		JOIN deals d ON d.id = m.deal_id
		WHERE m.status IN ('pending', 'in_progress')
		  AND m.due_date >= $1
		  AND m.due_date <= $2
		  AND d.stage NOT IN ('completed', 'cancelled')
		ORDER BY m.due_date ASC
	`

	rows, err := r.pool.Query(ctx, query, now, now.Add(window))
	if err != nil {
		return nil, fmt.Errorf("deal: list due milestones: %w", err)
	}
	defer rows.Close()

	out := make([]DueMilestone, 0, 8)
	for rows.Next() {
		var m DueMilestone
		if err := rows.Scan(
			&m.ID, &m.DealID, &m.Description, &m.Amount, &m.DueDate, &m.Status, &m.CreatedAt,
			&m.DealReference, &m.DealTitle, &m.SellerAddress,
		); err != nil {
			return nil, fmt.Errorf("deal: scan due milestone: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate due milestones: %w", err)
	}
	return out, nil
}

// InStageOlderThan lists deals sitting in the given stage that were created
// before the cutoff.
func (r *Repository) InStageOlderThan(ctx context.Context, stage Stage, cutoff time.Time) ([]Deal, error) {
	const query = `
		SELECT id, reference, title, buyer_address, seller_address, total_amount, stage::text, created_at
		FROM deals
		WHERE stage = $1::deal_stage
		  AND created_at < $2
		ORDER BY created_at ASC
	`

	rows, err := r.pool.Query(ctx, query, stage, cutoff)
	if err != nil {
		return nil, fmt.Errorf("deal: list stale deals: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

// ActiveForUser lists non-terminal deals where the address is buyer or seller.
func (r *Repository) ActiveForUser(ctx context.Context, addr string) ([]Deal, error) {
	const query = `
		SELECT id, reference, title, buyer_address, seller_address, total_amount, stage::text, created_at
		FROM deals
		WHERE (buyer_address = $1 OR seller_address = $1)
		  AND stage NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, addr)
	if err != nil {
		return nil, fmt.Errorf("deal: list active for user: %w", err)
	}
	defer rows.Close()

	return scanDeals(rows)
}

// UpcomingMilestoneCount counts milestones due within the window across the
// user's live deals.
func (r *Repository) UpcomingMilestoneCount(ctx context.Context, addr string, now time.Time, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM milestones m
		JOIN deals d ON d.id = m.deal_id
		WHERE (d.buyer_address = $1 OR d.seller_address = $1)
		  AND d.stage NOT IN ('completed', 'cancelled')
		  AND m.status IN ('pending', 'in_progress')
		  AND m.due_date >= $2
		  AND m.due_date <= $3
	`

	var n int
	if err := r.pool.QueryRow(ctx, query, addr, now, now.Add(window)).Scan(&n); err != nil {
		return 0, fmt.Errorf("deal: count upcoming milestones: %w", err)
	}
	return n, nil
}

// UnreadMessageCount counts unread messages addressed to the user.
func (r *Repository) UnreadMessageCount(ctx context.Context, addr string) (int, error) {
	const query = `SELECT COUNT(*) FROM messages WHERE recipient_address = $1 AND read = false`

	var n int
	if err := r.pool.QueryRow(ctx, query, addr).Scan(&n); err != nil {
		return 0, fmt.Errorf("deal: count unread messages: %w", err)
	}
	return n, nil
}

// RecentTimelineEvents lists events since the given instant across the user's
// deals, newest first, capped at limit.
func (r *Repository) RecentTimelineEvents(ctx context.Context, addr string, since time.Time, limit int) ([]TimelineEvent, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT e.id, e.deal_id, d.reference, e.type, e.payload, e.created_at
		FROM timeline_events e
		JOIN deals d ON d.id = e.deal_id
		WHERE (d.buyer_address = $1 OR d.seller_address = $1)
		  AND e.created_at >= $2
		ORDER BY e.created_at DESC
		LIMIT $3
	`

	rows, err := r.pool.Query(ctx, query, addr, since, limit)
	if err != nil {
		return nil, fmt.Errorf("deal: list timeline events: %w", err)
	}
	defer rows.Close()

	out := make([]TimelineEvent, 0, limit)
	for rows.Next() {
		var ev TimelineEvent
		if err := rows.Scan(&ev.ID, &ev.DealID, &ev.Reference, &ev.Type, &ev.Payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("deal: scan timeline event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate timeline events: %w", err)
	}
	return out, nil
}

func scanDeals(rows pgx.Rows) ([]Deal, error) {
	out := make([]Deal, 0, 8)
	for rows.Next() {
		var d Deal
		if err := rows.Scan(
			&d.ID, &d.Reference, &d.Title, &d.BuyerAddress, &d.SellerAddress,
			&d.TotalAmount, &d.Stage, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("deal: scan deal: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("deal: iterate deals: %w", err)
	}
	return out, nil
}
