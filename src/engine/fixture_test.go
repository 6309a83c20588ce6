package engine_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"clob-engine/src/engine"
	"clob-engine/src/ledger"
)

const (
	baseMint     = "BASE"
	quoteMint    = "QUOTE"
	walletAmount = uint64(1_000_000_000)
)

var feeAdmin = uuid.MustParse("11111111-2222-4333-8444-555555555555")

type fixture struct {
	t      *testing.T
	ctx    context.Context
	eng    *engine.Engine
	ledger *ledger.Memory
	market *engine.Market
	now    int64
	funded []uuid.UUID
}

// simpleParams trades one native unit per lot on both sides without fees.
func simpleParams() engine.MarketParams {
	return engine.MarketParams{
		Name:            "BASE/QUOTE",
		BaseMint:        baseMint,
		QuoteMint:       quoteMint,
		BaseLotSize:     1,
		QuoteLotSize:    1,
		CollectFeeAdmin: feeAdmin,
	}
}

func newFixture(t *testing.T, params engine.MarketParams) *fixture {
	t.Helper()
	f := &fixture{
		t:      t,
		ctx:    context.Background(),
		ledger: ledger.NewMemory(),
		now:    1_000,
	}
	f.eng = engine.New(f.ledger, engine.WithClock(func() int64 { return f.now }))
	m, err := f.eng.CreateMarket(params)
	require.NoError(t, err)
	f.market = m
	return f
}

// trader creates a funded wallet with an open-orders account.
func (f *fixture) trader() uuid.UUID {
	f.t.Helper()
	owner := f.wallet()
	_, err := f.eng.CreateOpenOrdersAccount(f.market.ID, owner)
	require.NoError(f.t, err)
	return owner
}

// wallet creates a funded owner without an account.
func (f *fixture) wallet() uuid.UUID {
	f.t.Helper()
	owner := uuid.New()
	require.NoError(f.t, f.ledger.Mint(f.ctx, owner, baseMint, walletAmount))
	require.NoError(f.t, f.ledger.Mint(f.ctx, owner, quoteMint, walletAmount))
	f.funded = append(f.funded, owner)
	return owner
}

func (f *fixture) account(owner uuid.UUID) *engine.OpenOrdersAccount {
	f.t.Helper()
	a, err := f.eng.Account(f.market.ID, owner)
	require.NoError(f.t, err)
	return a
}

func (f *fixture) balance(owner uuid.UUID, mint string) uint64 {
	f.t.Helper()
	b, err := f.ledger.Balance(f.ctx, owner, mint)
	require.NoError(f.t, err)
	return b
}

func (f *fixture) place(owner uuid.UUID, args engine.PlaceOrderArgs) (engine.PlacementOutcome, error) {
	return f.eng.PlaceOrder(f.ctx, f.market.ID, owner, args)
}

func (f *fixture) mustPlace(owner uuid.UUID, args engine.PlaceOrderArgs) engine.PlacementOutcome {
	f.t.Helper()
	out, err := f.place(owner, args)
	require.NoError(f.t, err)
	return out
}

func (f *fixture) consumeAll(owners ...uuid.UUID) engine.ConsumeResult {
	f.t.Helper()
	res, err := f.eng.ConsumeEvents(f.market.ID, owners, 0)
	require.NoError(f.t, err)
	return res
}

func limit(side engine.Side, price, qty int64) engine.PlaceOrderArgs {
	return engine.PlaceOrderArgs{
		Side:                      side,
		PriceLots:                 price,
		MaxBaseLots:               qty,
		MaxQuoteLotsIncludingFees: 1_000_000_000,
		OrderType:                 engine.TypeLimit,
	}
}

func withType(args engine.PlaceOrderArgs, t engine.OrderType) engine.PlaceOrderArgs {
	args.OrderType = t
	return args
}

func dec(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

func assertDec(t *testing.T, want int64, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	require.Truef(t, got.Equal(dec(want)), "want %d, got %s %v", want, got, msgAndArgs)
}
