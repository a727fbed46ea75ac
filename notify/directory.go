package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrAccountNotFound signals that no user row exists for a wallet address.
var ErrAccountNotFound = errors.New("notify: account not found")

// Directory resolves wallet addresses to accounts via the users table.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory wires a pgxpool-backed user directory.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// Lookup resolves a single wallet address.
func (d *Directory) Lookup(ctx context.Context, addr string) (Account, error) {
	const query = `
		SELECT wallet_address, COALESCE(email, ''), full_name, digest_enabled
		FROM users
		WHERE wallet_address = $1
	`

	var a Account
	err := d.pool.QueryRow(ctx, query, addr).Scan(&a.WalletAddress, &a.Email, &a.FullName, &a.DigestEnabled)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, fmt.Errorf("notify: lookup account: %w", err)
	}
	return a, nil
}

// ListAdmins lists every platform admin account.
func (d *Directory) ListAdmins(ctx context.Context) ([]Account, error) {
	const query = `
		SELECT wallet_address, COALESCE(email, ''), full_name, digest_enabled
		FROM users
		WHERE role = 'admin'
		ORDER BY wallet_address ASC
	`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("notify: list admins: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

// ListDigestUsers lists accounts that have the daily digest enabled.
func (d *Directory) ListDigestUsers(ctx context.Context) ([]Account, error) {
	const query = `
		SELECT wallet_address, COALESCE(email, ''), full_name, digest_enabled
		FROM users
		WHERE digest_enabled = true
		ORDER BY wallet_address ASC
	`

	rows, err := d.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("notify: list digest users: %w", err)
	}
	defer rows.Close()

	return scanAccounts(rows)
}

func scanAccounts(rows pgx.Rows) ([]Account, error) {
	out := make([]Account, 0, 8)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.WalletAddress, &a.Email, &a.FullName, &a.DigestEnabled); err != nil {
			return nil, fmt.Errorf("notify: scan account: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("notify: iterate accounts: %w", err)
	}
	return out, nil
}
