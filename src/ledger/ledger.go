// Package ledger holds the token custody used by the engine: owner wallets
// and market vaults, keyed by (owner, mint).
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"clob-engine/src/engine"
)

// ErrInsufficientFunds is returned when a sender's balance is short.
var ErrInsufficientFunds = engine.ErrInsufficientFunds

// Ledger is an engine.TokenLedger that can also mint and report balances.
type Ledger interface {
	engine.TokenLedger
	Mint(ctx context.Context, owner uuid.UUID, mint string, amount uint64) error
	Balance(ctx context.Context, owner uuid.UUID, mint string) (uint64, error)
	Close() error
}

type balanceKey struct {
	owner uuid.UUID
	mint  string
}

// Memory keeps balances in a map. Every batch is checked in full before any
// balance changes.
type Memory struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
}

func NewMemory() *Memory {
	return &Memory{balances: make(map[balanceKey]uint64)}
}

func (l *Memory) Transfer(_ context.Context, transfers ...engine.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	staged := make(map[balanceKey]uint64)
	get := func(k balanceKey) uint64 {
		if v, ok := staged[k]; ok {
			return v
		}
		return l.balances[k]
	}
	for _, t := range transfers {
		from := balanceKey{t.From, t.Mint}
		to := balanceKey{t.To, t.Mint}
		have := get(from)
		if have < t.Amount {
			return fmt.Errorf("%s of %s holds %d, needs %d: %w", t.Mint, t.From, have, t.Amount, ErrInsufficientFunds)
		}
		staged[from] = have - t.Amount
		recv := get(to)
		if recv+t.Amount < recv {
			return fmt.Errorf("%s balance of %s overflows: %w", t.Mint, t.To, engine.ErrArithmeticOverflow)
		}
		staged[to] = recv + t.Amount
	}
	for k, v := range staged {
		l.balances[k] = v
	}
	return nil
}

func (l *Memory) Mint(_ context.Context, owner uuid.UUID, mint string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := balanceKey{owner, mint}
	if l.balances[k]+amount < l.balances[k] {
		return fmt.Errorf("%s balance of %s overflows: %w", mint, owner, engine.ErrArithmeticOverflow)
	}
	l.balances[k] += amount
	return nil
}

func (l *Memory) Balance(_ context.Context, owner uuid.UUID, mint string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[balanceKey{owner, mint}], nil
}

func (l *Memory) Close() error { return nil }
