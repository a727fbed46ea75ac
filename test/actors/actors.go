package actors

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"dealflow/deal"
	"dealflow/digest"
	"dealflow/dispute"
	"dealflow/notify"
	"dealflow/reminder"
)

// Scanner runs deadline scan ticks in a loop against the live database.
// Several Scanner actors race each other on the reminder ledger; the unique
// key is what keeps the outcome at most one ledger row per tier. Tick errors
// are tolerated because the next tick retries whatever was left undone.
func Scanner(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	deals := deal.NewRepository(pool)
	disputes := dispute.NewRepository(pool)
	ledger := reminder.NewLedger(pool)
	dispatcher := notify.NewDispatcher(notify.NewSink(pool), notify.NewDirectory(pool), notify.LogMailer{})
	scanner := reminder.NewScanner(deals, disputes, ledger, dispatcher)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = scanner.Run(ctx, time.Now().UTC())
		time.Sleep(time.Duration(20+rand.Intn(40)) * time.Millisecond)
	}
}

// Digester composes daily digests in a loop so digest reads run concurrently
// with scanner writes and workflow churn.
func Digester(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) error {
	deals := deal.NewRepository(pool)
	disputes := dispute.NewRepository(pool)
	directory := notify.NewDirectory(pool)
	dispatcher := notify.NewDispatcher(notify.NewSink(pool), directory, notify.LogMailer{})
	agg := digest.NewAggregator(directory, deals, disputes, dispatcher)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, _ = agg.Run(ctx, time.Now().UTC())
		time.Sleep(time.Duration(100+rand.Intn(100)) * time.Millisecond)
	}
}

// MilestoneWriter keeps feeding the scanner by attaching near-term milestones
// to the seeded deal. Due dates land inside the reminder lookahead so every
// insert is a fresh reminder candidate.
func MilestoneWriter(ctx context.Context, pool *pgxpool.Pool, dealID string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		due := time.Now().UTC().Add(time.Duration(1+rand.Intn(6)) * 24 * time.Hour)
		_, err := pool.Exec(ctx, `INSERT INTO milestones (deal_id, description, amount, due_date)
                                  VALUES ($1,$2,$3,$4)`,
			dealID, fmt.Sprintf("Load %d inspection", rand.Intn(1000)), 50+rand.Intn(500), due)
		if err != nil {
			return fmt.Errorf("milestone writer: %w", err)
		}
		time.Sleep(time.Duration(40+rand.Intn(80)) * time.Millisecond)
	}
}

// EscrowStaler creates awaiting_payment deals backdated past the staleness
// cutoff so the payment phase always has stale escrow to nudge.
func EscrowStaler(ctx context.Context, pool *pgxpool.Pool, buyer, seller string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		created := time.Now().UTC().Add(-time.Duration(4+rand.Intn(4)) * 24 * time.Hour)
		_, err := pool.Exec(ctx, `INSERT INTO deals (reference, title, buyer_address, seller_address, total_amount, stage, created_at)
                                  VALUES ($1,$2,$3,$4,$5,'awaiting_payment',$6)`,
			fmt.Sprintf("DL-%06d", rand.Intn(1000000)), "Stale escrow deal", buyer, seller, 1000, created)
		if err != nil {
			// reference collisions are fine under contention
			time.Sleep(50 * time.Millisecond)
			continue
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// Disputer files backdated pending disputes against the seeded deal and
// resolves a fraction of them with a ruling, driving the escalation notifier
// through opened and resolved while the scanner picks up the unanswered ones.
func Disputer(ctx context.Context, pool *pgxpool.Pool, dealID, filer, respondent string, stop <-chan struct{}) error {
	notifier := dispute.NewNotifier(
		deal.NewRepository(pool),
		notify.NewDirectory(pool),
		notify.NewDispatcher(notify.NewSink(pool), notify.NewDirectory(pool), notify.LogMailer{}),
	)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		created := time.Now().UTC().Add(-time.Duration(3+rand.Intn(3)) * 24 * time.Hour)
		var rec dispute.Record
		err := pool.QueryRow(ctx, `INSERT INTO disputes (deal_id, filer_address, respondent_address, reason, created_at)
                                   VALUES ($1,$2,$3,'goods arrived damaged',$4)
                                   RETURNING id, deal_id, filer_address, respondent_address, reason, status::text, created_at`,
			dealID, filer, respondent, created).Scan(
			&rec.ID, &rec.DealID, &rec.FilerAddress, &rec.RespondentAddress, &rec.Reason, &rec.Status, &rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("disputer insert: %w", err)
		}
		_ = notifier.OnTransition(ctx, dispute.Event{Transition: dispute.TransitionOpened, Dispute: rec, Actor: filer})

		if rand.Intn(3) == 0 {
			ruling := dispute.RulingSplit
			_, _ = pool.Exec(ctx, `UPDATE disputes SET status='resolved', ruling=$2, resolved_at=NOW() WHERE id=$1`, rec.ID, ruling)
			rec.Status = dispute.StatusResolved
			rec.Ruling = &ruling
			now := time.Now().UTC()
			rec.ResolvedAt = &now
			_ = notifier.OnTransition(ctx, dispute.Event{Transition: dispute.TransitionResolved, Dispute: rec})
		}
		time.Sleep(time.Duration(200+rand.Intn(200)) * time.Millisecond)
	}
}

// EventWriter appends timeline events and unread messages so digest activity
// feeds are never empty.
func EventWriter(ctx context.Context, pool *pgxpool.Pool, dealID, sender, recipient string, stop <-chan struct{}) error {
	types := []string{"STAGE_CHANGED", "PAYMENT_RECEIVED", "SHIPMENT_POSTED", "MESSAGE_SENT"}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		ty := types[rand.Intn(len(types))]
		if _, err := pool.Exec(ctx, `INSERT INTO timeline_events (deal_id, type, payload) VALUES ($1,$2,'{}'::jsonb)`, dealID, ty); err != nil {
			return fmt.Errorf("event writer: %w", err)
		}
		if rand.Intn(2) == 0 {
			_, _ = pool.Exec(ctx, `INSERT INTO messages (deal_id, sender_address, recipient_address, body)
                                   VALUES ($1,$2,$3,'checking in on the shipment')`, dealID, sender, recipient)
		}
		time.Sleep(time.Duration(30+rand.Intn(60)) * time.Millisecond)
	}
}
