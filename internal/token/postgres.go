package token

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PGLedger is a Postgres-backed token ledger. Each transfer runs in a
// serializable transaction that locks both account rows (in address order,
// so concurrent transfers cannot deadlock) and records a transfer row for
// audit.
type PGLedger struct {
	db *sql.DB
}

// NewPGLedger wraps an open database handle and ensures the backing tables
// exist.
func NewPGLedger(db *sql.DB) (*PGLedger, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS token_accounts (
			address    TEXT PRIMARY KEY,
			balance    BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE TABLE IF NOT EXISTS token_transfers (
			id           UUID PRIMARY KEY,
			from_address TEXT NOT NULL,
			to_address   TEXT NOT NULL,
			amount       BIGINT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to create token tables: %w", err)
	}
	return &PGLedger{db: db}, nil
}

func (l *PGLedger) Transfer(ctx context.Context, from, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	tx, err := l.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Lock both rows in address order to avoid deadlocks.
	first, second := from, to
	if second < first {
		first, second = second, first
	}
	for _, addr := range []string{first, second} {
		if err := lockAccount(ctx, tx, addr); err != nil {
			return err
		}
	}

	var fromBalance int64
	err = tx.QueryRowContext(ctx,
		`SELECT balance FROM token_accounts WHERE address = $1`, from,
	).Scan(&fromBalance)
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if fromBalance < amount {
		return ErrInsufficientBalance
	}

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE token_accounts SET balance = balance - $1, updated_at = $2 WHERE address = $3`,
		amount, now, from,
	)
	if err != nil {
		return fmt.Errorf("failed to debit account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE token_accounts SET balance = balance + $1, updated_at = $2 WHERE address = $3`,
		amount, now, to,
	)
	if err != nil {
		return fmt.Errorf("failed to credit account: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO token_transfers (id, from_address, to_address, amount, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		uuid.New(), from, to, amount, now,
	)
	if err != nil {
		return fmt.Errorf("failed to record transfer: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func (l *PGLedger) Balance(ctx context.Context, account string) (int64, error) {
	var balance int64
	err := l.db.QueryRowContext(ctx,
		`SELECT balance FROM token_accounts WHERE address = $1`, account,
	).Scan(&balance)

	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read balance: %w", err)
	}
	return balance, nil
}

func (l *PGLedger) Mint(ctx context.Context, to string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO token_accounts (address, balance, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (address) DO UPDATE
		 SET balance = token_accounts.balance + EXCLUDED.balance, updated_at = EXCLUDED.updated_at`,
		to, amount, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to mint: %w", err)
	}
	return nil
}

// lockAccount ensures the row exists and takes a row lock on it.
func lockAccount(ctx context.Context, tx *sql.Tx, address string) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO token_accounts (address, balance, updated_at) VALUES ($1, 0, $2)
		 ON CONFLICT (address) DO NOTHING`,
		address, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to ensure account %s: %w", address, err)
	}

	var addr string
	err = tx.QueryRowContext(ctx,
		`SELECT address FROM token_accounts WHERE address = $1 FOR UPDATE`, address,
	).Scan(&addr)
	if err != nil {
		return fmt.Errorf("failed to lock account %s: %w", address, err)
	}
	return nil
}
