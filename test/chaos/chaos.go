package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TerminateRandomBackend occasionally kills one of the engine's own database
// backends. Scanner ticks that lose their connection mid-dispatch must leave
// no ledger row, so the next tick retries the reminder instead of losing it.
func TerminateRandomBackend(ctx context.Context, pool *pgxpool.Pool, stop <-chan struct{}) {
	ticker := time.NewTicker(3 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			if rand.Intn(4) != 0 {
				continue
			}
			_, _ = pool.Exec(ctx, `SELECT pg_terminate_backend(pid)
			                       FROM pg_stat_activity
			                       WHERE datname = current_database() AND pid <> pg_backend_pid()
			                       ORDER BY random() LIMIT 1`)
		}
	}
}
