package test

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"dealflow/test/actors"
	"dealflow/test/chaos"
	"dealflow/test/infra"
	"dealflow/test/oracles"
)

var (
	flDuration    = flag.Duration("duration", 90*time.Second, "how long to run stress")
	flConcurrency = flag.Int("concurrency", 8, "number of concurrent scanner actors")
	flSeed        = flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flDSN         = flag.String("dsn", "", "existing Postgres DSN to reuse (avoids Docker)")
)

func seedRNG(seed int64) { rand.Seed(seed) }

func TestEngineConcurrency(t *testing.T) {
	flag.Parse()
	seed := *flSeed
	seedRNG(seed)

	var (
		pgC        *infra.PGContainer
		dsn        string
		err        error
		usedShared bool
	)
	ctx, cancel := context.WithTimeout(context.Background(), *flDuration+60*time.Second)
	defer cancel()

	switch {
	case *flDSN != "":
		dsn = *flDSN
		usedShared = true
		pgC = &infra.PGContainer{}
	case os.Getenv("ENGINE_TEST_PG_DSN") != "":
		dsn = os.Getenv("ENGINE_TEST_PG_DSN")
		usedShared = true
		pgC = &infra.PGContainer{}
	default:
		if dockerAvailable(ctx) {
			pgC, dsn, err = infra.StartPostgres16(ctx, "")
			if err != nil {
				t.Fatalf("start postgres: %v", err)
			}
		} else {
			dsn, err = infra.InitLocalDatabase(ctx)
			if err != nil {
				t.Fatalf("init local database: %v", err)
			}
			pgC = &infra.PGContainer{}
		}
	}
	defer pgC.Terminate(context.Background())

	// migrations
	pool, teardown, err := infra.ApplyMigrations(ctx, dsn, usedShared)
	if err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	defer pool.Close()
	defer func() {
		if err := teardown(context.Background()); err != nil {
			t.Logf("teardown warning: %v", err)
		}
	}()

	// seed minimal data
	seedData := mustSeed(t, ctx, pool)

	// run actors
	g, ctx2 := errgroup.WithContext(ctx)
	stop := make(chan struct{})

	// scanners racing each other on the reminder ledger
	for i := 0; i < *flConcurrency; i++ {
		g.Go(func() error { return actors.Scanner(ctx2, pool, stop) })
	}

	// digest reader alongside the writers
	g.Go(func() error { return actors.Digester(ctx2, pool, stop) })
	// fresh milestones for the scanners to pick up
	g.Go(func() error { return actors.MilestoneWriter(ctx2, pool, seedData.dealID, stop) })
	// stale awaiting_payment deals for the escrow phase
	g.Go(func() error { return actors.EscrowStaler(ctx2, pool, seedData.buyer, seedData.seller, stop) })
	// disputes opened and resolved through the escalation notifier
	g.Go(func() error {
		return actors.Disputer(ctx2, pool, seedData.dealID, seedData.buyer, seedData.seller, stop)
	})
	// digest activity feed
	g.Go(func() error {
		return actors.EventWriter(ctx2, pool, seedData.dealID, seedData.seller, seedData.buyer, stop)
	})
	// chaos: kill random backend
	go chaos.TerminateRandomBackend(ctx2, pool, stop)

	// schedule oracle checks until duration reached
	deadline := time.Now().Add(*flDuration)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var failed bool
loop:
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			name, row, err := oracles.Run(ctx2, pool)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					break loop
				}
				t.Fatalf("oracle error: %v", err)
			}
			if name != "" {
				failed = true
				dumpRecent(t, ctx2, pool)
				t.Fatalf("Oracle %s failed. First row: %s (seed=%d)", name, row, seed)
			}
		}
	}

	close(stop)
	if err := g.Wait(); err != nil && !failed {
		if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			t.Fatalf("actors errored: %v", err)
		}
	}
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}

type seedIDs struct {
	buyer  string
	seller string
	admin  string
	dealID string
}

func mustSeed(t *testing.T, ctx context.Context, pool *pgxpool.Pool) seedIDs {
	t.Helper()
	n := rand.Int63()
	s := seedIDs{
		buyer:  fmt.Sprintf("0xbuyer%016x", n),
		seller: fmt.Sprintf("0xseller%016x", n),
		admin:  fmt.Sprintf("0xadmin%016x", n),
	}
	// trading parties with digests enabled, plus one admin for escalations
	for _, u := range []struct{ addr, name, role string }{
		{s.buyer, "Stress Buyer", "trader"},
		{s.seller, "Stress Seller", "trader"},
		{s.admin, "Stress Admin", "admin"},
	} {
		if _, err := pool.Exec(ctx, `INSERT INTO users (wallet_address, email, full_name, role)
                                     VALUES ($1,$2,$3,$4)`,
			u.addr, fmt.Sprintf("%s@example.com", u.name), u.name, u.role); err != nil {
			t.Fatalf("seed user %s: %v", u.name, err)
		}
	}
	// one live deal the actors churn on
	if err := pool.QueryRow(ctx, `INSERT INTO deals (reference, title, buyer_address, seller_address, total_amount, stage)
                                  VALUES ($1,'Copper cathode lot',$2,$3,2500,'in_transit') RETURNING id`,
		fmt.Sprintf("DL-SEED-%d", n), s.buyer, s.seller).Scan(&s.dealID); err != nil {
		t.Fatalf("seed deal: %v", err)
	}
	// one milestone already inside the reminder lookahead
	if _, err := pool.Exec(ctx, `INSERT INTO milestones (deal_id, description, amount, due_date)
                                 VALUES ($1,'Delivery to port',2500,$2)`,
		s.dealID, time.Now().UTC().Add(48*time.Hour)); err != nil {
		t.Fatalf("seed milestone: %v", err)
	}
	return s
}

func dumpRecent(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	type dump struct {
		name string
		sql  string
	}
	dumps := []dump{
		{"reminder_ledger", `SELECT deal_id, item_id, tier, sent_at FROM reminder_ledger ORDER BY sent_at DESC LIMIT 50`},
		{"notifications", `SELECT id, user_address, type, priority, created_at FROM notifications ORDER BY created_at DESC LIMIT 50`},
		{"disputes", `SELECT id, deal_id, status, ruling, resolved_at FROM disputes ORDER BY created_at DESC LIMIT 50`},
		{"timeline_events", `SELECT id, deal_id, type, created_at FROM timeline_events ORDER BY id DESC LIMIT 50`},
	}
	for _, d := range dumps {
		rows, err := pool.Query(ctx, d.sql)
		if err != nil {
			t.Logf("dump %s error: %v", d.name, err)
			continue
		}
		cols := rows.FieldDescriptions()
		t.Logf("-- %s --", d.name)
		for rows.Next() {
			vals, _ := rows.Values()
			// compact print
			buf := make([]any, 0, len(vals))
			for i := range vals {
				buf = append(buf, fmt.Sprintf("%s=%v", string(cols[i].Name), vals[i]))
			}
			t.Logf("%s", buf)
		}
		rows.Close()
	}
}
