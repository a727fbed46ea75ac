package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_ledger_at_most_once",
			SQL: `SELECT deal_id, item_id, tier, COUNT(*) FROM reminder_ledger
                  GROUP BY deal_id, item_id, tier HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_ledger_tier_domain",
			SQL: `SELECT deal_id, item_id, tier FROM reminder_ledger
                  WHERE tier NOT IN ('1day','3day','7day','payment','response')`,
		},
		{
			Name: "O3_ledger_references_live_deal",
			SQL: `SELECT l.deal_id, l.item_id, l.tier FROM reminder_ledger l
                  LEFT JOIN deals d ON d.id::text = l.deal_id
                  WHERE d.id IS NULL`,
		},
		{
			Name: "O4_notification_priority_domain",
			SQL: `SELECT id FROM notifications
                  WHERE priority NOT IN ('low','medium','high','critical')`,
		},
		{
			Name: "O5_notification_recipient_present",
			SQL:  `SELECT id FROM notifications WHERE user_address = ''`,
		},
		{
			Name: "O6_resolved_dispute_has_ruling",
			SQL:  `SELECT id FROM disputes WHERE status = 'resolved' AND ruling IS NULL`,
		},
		{
			Name: "O7_unresolved_dispute_has_no_resolution_time",
			SQL:  `SELECT id FROM disputes WHERE status <> 'resolved' AND resolved_at IS NOT NULL`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
