package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tier is a named urgency bucket for a reminder. Together with the deal and
// item identifiers it forms the dedup key.
type Tier string

const (
	Tier1Day     Tier = "1day"
	Tier3Day     Tier = "3day"
	Tier7Day     Tier = "7day"
	TierPayment  Tier = "payment"
	TierResponse Tier = "response"
)

// ErrAlreadySent signals the ledger already holds an entry for the key. A
// duplicate insert is the idempotency signal, not a failure.
var ErrAlreadySent = errors.New("reminder: already sent")

// Ledger records which (deal, item, tier) reminders have been dispatched.
// Insert is the atomic commit point of a dispatch: overlapping scanner runs
// race on the unique key and exactly one wins.
type Ledger interface {
	Insert(ctx context.Context, dealID, itemID string, tier Tier, sentAt time.Time) error
	Exists(ctx context.Context, dealID, itemID string, tier Tier) (bool, error)
}

// PGLedger implements Ledger backed by PostgreSQL, relying on the composite
// primary key of reminder_ledger for at-most-once semantics.
type PGLedger struct {
	pool *pgxpool.Pool
}

// NewLedger creates a PostgreSQL-backed reminder ledger.
func NewLedger(pool *pgxpool.Pool) *PGLedger {
	return &PGLedger{pool: pool}
}

// Insert reserves the key, returning ErrAlreadySent when a previous dispatch
// already holds it. Entries are never updated or deleted by the engine.
func (l *PGLedger) Insert(ctx context.Context, dealID, itemID string, tier Tier, sentAt time.Time) error {
	if dealID == "" || itemID == "" || tier == "" {
		return fmt.Errorf("reminder: incomplete ledger key (%q, %q, %q)", dealID, itemID, tier)
	}

	const insertSQL = `
		INSERT INTO reminder_ledger (deal_id, item_id, tier, sent_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := l.pool.Exec(ctx, insertSQL, dealID, itemID, tier, sentAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadySent
		}
		return fmt.Errorf("reminder: insert ledger entry: %w", err)
	}

	return nil
}

// Exists reports whether the key was already committed. Used as a cheap
// pre-check to avoid pointless dispatch work; Insert remains the gate.
func (l *PGLedger) Exists(ctx context.Context, dealID, itemID string, tier Tier) (bool, error) {
	const query = `
		SELECT EXISTS (
			SELECT 1 FROM reminder_ledger WHERE deal_id = $1 AND item_id = $2 AND tier = $3
		)
	`

	var exists bool
	if err := l.pool.QueryRow(ctx, query, dealID, itemID, tier).Scan(&exists); err != nil {
		return false, fmt.Errorf("reminder: check ledger entry: %w", err)
	}
	return exists, nil
}
