package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"clob-engine/src/engine"
)

// SQLite keeps balances and a transfer journal in a SQLite database. Each
// batch runs in one transaction.
type SQLite struct {
	db *sql.DB
}

func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared and writes serial
	db.SetMaxOpenConns(1)

	l := &SQLite{db: db}
	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *SQLite) Close() error {
	return l.db.Close()
}

func (l *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS balances (
		owner TEXT NOT NULL,
		mint TEXT NOT NULL,
		amount INTEGER NOT NULL DEFAULT 0 CHECK (amount >= 0),
		PRIMARY KEY (owner, mint)
	);

	CREATE TABLE IF NOT EXISTS transfers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		mint TEXT NOT NULL,
		from_owner TEXT,
		to_owner TEXT NOT NULL,
		amount INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_transfers_to ON transfers(to_owner);
	`
	_, err := l.db.Exec(schema)
	return err
}

func toStored(amount uint64) (int64, error) {
	if amount > math.MaxInt64 {
		return 0, fmt.Errorf("amount %d: %w", amount, engine.ErrArithmeticOverflow)
	}
	return int64(amount), nil
}

func (l *SQLite) Transfer(ctx context.Context, transfers ...engine.Transfer) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range transfers {
		amount, err := toStored(t.Amount)
		if err != nil {
			return err
		}
		have, err := balanceTx(ctx, tx, t.From, t.Mint)
		if err != nil {
			return err
		}
		if have < amount {
			return fmt.Errorf("%s of %s holds %d, needs %d: %w", t.Mint, t.From, have, amount, ErrInsufficientFunds)
		}
		if _, err := tx.ExecContext(ctx,
			"UPDATE balances SET amount = amount - ? WHERE owner = ? AND mint = ?",
			amount, t.From.String(), t.Mint,
		); err != nil {
			return err
		}
		if err := creditTx(ctx, tx, t.To, t.Mint, amount); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO transfers (mint, from_owner, to_owner, amount) VALUES (?, ?, ?, ?)",
			t.Mint, t.From.String(), t.To.String(), amount,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (l *SQLite) Mint(ctx context.Context, owner uuid.UUID, mint string, amount uint64) error {
	stored, err := toStored(amount)
	if err != nil {
		return err
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := creditTx(ctx, tx, owner, mint, stored); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transfers (mint, from_owner, to_owner, amount) VALUES (?, NULL, ?, ?)",
		mint, owner.String(), stored,
	); err != nil {
		return err
	}
	return tx.Commit()
}

func (l *SQLite) Balance(ctx context.Context, owner uuid.UUID, mint string) (uint64, error) {
	var amount int64
	err := l.db.QueryRowContext(ctx,
		"SELECT amount FROM balances WHERE owner = ? AND mint = ?",
		owner.String(), mint,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(amount), nil
}

// TransferCount returns the number of journaled transfers touching owner.
func (l *SQLite) TransferCount(ctx context.Context, owner uuid.UUID) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM transfers WHERE from_owner = ? OR to_owner = ?",
		owner.String(), owner.String(),
	).Scan(&n)
	return n, err
}

func balanceTx(ctx context.Context, tx *sql.Tx, owner uuid.UUID, mint string) (int64, error) {
	var amount int64
	err := tx.QueryRowContext(ctx,
		"SELECT amount FROM balances WHERE owner = ? AND mint = ?",
		owner.String(), mint,
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return amount, err
}

func creditTx(ctx context.Context, tx *sql.Tx, owner uuid.UUID, mint string, amount int64) error {
	have, err := balanceTx(ctx, tx, owner, mint)
	if err != nil {
		return err
	}
	if have > math.MaxInt64-amount {
		return fmt.Errorf("%s balance of %s overflows: %w", mint, owner, engine.ErrArithmeticOverflow)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO balances (owner, mint, amount) VALUES (?, ?, ?)
		 ON CONFLICT(owner, mint) DO UPDATE SET amount = amount + excluded.amount`,
		owner.String(), mint, amount,
	)
	return err
}
