package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob-engine/src/engine"
)

func ledgers(t *testing.T) map[string]Ledger {
	t.Helper()
	sqlite, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Ledger{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func TestTransferBatch(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, bob, vault := uuid.New(), uuid.New(), uuid.New()
			require.NoError(t, l.Mint(ctx, alice, "QUOTE", 500))
			require.NoError(t, l.Mint(ctx, bob, "BASE", 7))

			err := l.Transfer(ctx,
				engine.Transfer{Mint: "QUOTE", From: alice, To: vault, Amount: 300},
				engine.Transfer{Mint: "BASE", From: bob, To: vault, Amount: 7},
				engine.Transfer{Mint: "QUOTE", From: vault, To: bob, Amount: 120},
			)
			require.NoError(t, err)

			balance := func(owner uuid.UUID, mint string) uint64 {
				b, err := l.Balance(ctx, owner, mint)
				require.NoError(t, err)
				return b
			}
			assert.Equal(t, uint64(200), balance(alice, "QUOTE"))
			assert.Equal(t, uint64(180), balance(vault, "QUOTE"))
			assert.Equal(t, uint64(7), balance(vault, "BASE"))
			assert.Equal(t, uint64(120), balance(bob, "QUOTE"))
			assert.Zero(t, balance(bob, "BASE"))
			assert.Zero(t, balance(uuid.New(), "QUOTE"))
		})
	}
}

func TestTransferIsAllOrNothing(t *testing.T) {
	for name, l := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			alice, vault := uuid.New(), uuid.New()
			require.NoError(t, l.Mint(ctx, alice, "QUOTE", 100))
			require.NoError(t, l.Mint(ctx, alice, "BASE", 1))

			err := l.Transfer(ctx,
				engine.Transfer{Mint: "QUOTE", From: alice, To: vault, Amount: 100},
				engine.Transfer{Mint: "BASE", From: alice, To: vault, Amount: 2},
			)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInsufficientFunds))
			assert.True(t, errors.Is(err, engine.ErrInsufficientFunds))

			quote, err := l.Balance(ctx, alice, "QUOTE")
			require.NoError(t, err)
			assert.Equal(t, uint64(100), quote, "first leg rolled back")
			held, err := l.Balance(ctx, vault, "QUOTE")
			require.NoError(t, err)
			assert.Zero(t, held)
		})
	}
}

func TestMemoryMintOverflow(t *testing.T) {
	l := NewMemory()
	owner := uuid.New()
	require.NoError(t, l.Mint(context.Background(), owner, "BASE", ^uint64(0)))
	err := l.Mint(context.Background(), owner, "BASE", 1)
	assert.True(t, errors.Is(err, engine.ErrArithmeticOverflow))
}

func TestSQLiteJournal(t *testing.T) {
	l, err := NewSQLite(":memory:")
	require.NoError(t, err)
	defer l.Close()
	ctx := context.Background()

	owner, vault := uuid.New(), uuid.New()
	require.NoError(t, l.Mint(ctx, owner, "QUOTE", 50))
	require.NoError(t, l.Transfer(ctx, engine.Transfer{Mint: "QUOTE", From: owner, To: vault, Amount: 20}))

	n, err := l.TransferCount(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = l.TransferCount(ctx, vault)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = l.Mint(ctx, owner, "QUOTE", ^uint64(0))
	assert.True(t, errors.Is(err, engine.ErrArithmeticOverflow))
}
