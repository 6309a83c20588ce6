package engine_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clob-engine/src/engine"
)

func referralParams() engine.MarketParams {
	params := simpleParams()
	params.TakerFee = decimal.RequireFromString("0.01")
	params.ReferrerRebate = decimal.RequireFromString("0.5")
	return params
}

func TestSettleFundsIsIdempotent(t *testing.T) {
	f := newFixture(t, simpleParams())
	maker, taker := f.trader(), f.trader()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 3))
	f.mustPlace(taker, limit(engine.SideBid, 100, 3))
	f.consumeAll(maker, taker)

	req, err := f.eng.SettleFunds(f.ctx, f.market.ID, maker, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), req.Quote)
	assert.Zero(t, req.Base)
	assert.Equal(t, walletAmount+300, f.balance(maker, quoteMint))
	assert.Equal(t, walletAmount-3, f.balance(maker, baseMint))

	again, err := f.eng.SettleFunds(f.ctx, f.market.ID, maker, nil)
	require.NoError(t, err)
	assert.True(t, again.IsZero())
	assert.Equal(t, walletAmount+300, f.balance(maker, quoteMint))

	req, err = f.eng.SettleFunds(f.ctx, f.market.ID, taker, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), req.Base)
	assert.Equal(t, walletAmount+3, f.balance(taker, baseMint))
	assert.True(t, f.account(taker).Position.IsEmpty())
}

func TestTakeOrderPaysReferrer(t *testing.T) {
	f := newFixture(t, referralParams())
	maker := f.trader()
	taker, referrer := f.wallet(), uuid.New()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))

	args := engine.PlaceOrderArgs{Side: engine.SideBid, PriceLots: 100, MaxBaseLots: 10, MaxQuoteLotsIncludingFees: 2_000}
	out, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, args, &referrer)
	require.NoError(t, err)
	assert.Equal(t, int64(10), out.BaseLotsMatched)
	assertDec(t, 1_010, out.DepositQuote)
	assert.Equal(t, uint64(10), out.PaidBase)
	assert.Equal(t, uint64(5), out.ReferrerPaid)
	assert.Zero(t, out.RefundedQuote)
	assert.False(t, out.Inserted)

	assert.Equal(t, walletAmount-1_010, f.balance(taker, quoteMint))
	assert.Equal(t, walletAmount+10, f.balance(taker, baseMint))
	assert.Equal(t, uint64(5), f.balance(referrer, quoteMint))
	assertDec(t, 5, f.market.FeesAccrued)
	assertDec(t, 0, f.market.ReferrerRebatesAccrued)

	// a fill against a take order still leaves the maker's half to consume
	f.consumeAll(maker)
	assert.Equal(t, int64(-10), f.account(maker).Position.BasePositionLots)
	assertDec(t, 1_000, f.account(maker).Position.QuoteFreeNative)
}

func TestTakeOrderWithoutReferrerKeepsFullFee(t *testing.T) {
	f := newFixture(t, referralParams())
	maker, taker := f.trader(), f.wallet()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))

	args := engine.PlaceOrderArgs{Side: engine.SideBid, PriceLots: 100, MaxBaseLots: 10, MaxQuoteLotsIncludingFees: 2_000}
	out, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, args, nil)
	require.NoError(t, err)
	assert.Zero(t, out.ReferrerPaid)
	assertDec(t, 10, f.market.FeesAccrued)
}

func TestTakeOrderRejectsRestingTypes(t *testing.T) {
	f := newFixture(t, simpleParams())
	taker := f.wallet()

	_, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, limit(engine.SideBid, 100, 1), nil)
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument))

	_, err = f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, withType(limit(engine.SideBid, 100, 1), engine.TypePostOnly), nil)
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument))

	// nothing to match and nothing rests
	out, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, withType(limit(engine.SideBid, 100, 1), ""), nil)
	require.NoError(t, err)
	assert.Zero(t, out.BaseLotsMatched)
	assert.Equal(t, walletAmount, f.balance(taker, quoteMint))
}

func TestSettleFundsRoutesReferrerRebate(t *testing.T) {
	f := newFixture(t, referralParams())
	maker, taker := f.trader(), f.trader()
	referrer := uuid.New()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))

	bid := limit(engine.SideBid, 100, 10)
	bid.MaxQuoteLotsIncludingFees = 2_000
	f.mustPlace(taker, bid)
	assertDec(t, 5, f.market.ReferrerRebatesAccrued)
	assertDec(t, 5, f.market.FeesAccrued)
	assertDec(t, 5, f.account(taker).Position.ReferrerRebatesAvailable)

	req, err := f.eng.SettleFunds(f.ctx, f.market.ID, taker, &referrer)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), req.ReferrerRebate)
	assert.Equal(t, uint64(10), req.Base)
	assert.Equal(t, uint64(5), f.balance(referrer, quoteMint))
	assertDec(t, 0, f.market.ReferrerRebatesAccrued)
	assertDec(t, 5, f.market.FeesAccrued)
}

func TestSettleFundsWithoutReferrerReturnsRebateToFees(t *testing.T) {
	f := newFixture(t, referralParams())
	maker, taker := f.trader(), f.trader()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))

	bid := limit(engine.SideBid, 100, 10)
	bid.MaxQuoteLotsIncludingFees = 2_000
	f.mustPlace(taker, bid)

	req, err := f.eng.SettleFunds(f.ctx, f.market.ID, taker, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), req.ReferrerRebate)
	assertDec(t, 10, f.market.FeesAccrued)
	assertDec(t, 0, f.account(taker).Position.ReferrerRebatesAvailable)
}

func TestSweepFees(t *testing.T) {
	f := newFixture(t, referralParams())
	maker, taker := f.trader(), f.wallet()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))
	referrer := uuid.New()
	args := engine.PlaceOrderArgs{Side: engine.SideBid, PriceLots: 100, MaxBaseLots: 10, MaxQuoteLotsIncludingFees: 2_000}
	_, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, taker, args, &referrer)
	require.NoError(t, err)

	_, err = f.eng.SweepFees(f.ctx, f.market.ID, maker)
	assert.True(t, errors.Is(err, engine.ErrUnauthorized))
	assertDec(t, 5, f.market.FeesAccrued)

	req, err := f.eng.SweepFees(f.ctx, f.market.ID, feeAdmin)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), req.Quote)
	assert.Equal(t, uint64(5), f.balance(feeAdmin, quoteMint))
	assertDec(t, 0, f.market.FeesAccrued)
	assertDec(t, 5, f.market.FeesSwept)

	req, err = f.eng.SweepFees(f.ctx, f.market.ID, feeAdmin)
	require.NoError(t, err)
	assert.Zero(t, req.Quote)
	assert.Equal(t, uint64(5), f.balance(feeAdmin, quoteMint))
}

func TestEventQueueOverflowNeedsReconciliation(t *testing.T) {
	params := simpleParams()
	params.EventQueueCapacity = 3
	f := newFixture(t, params)
	maker, taker := f.trader(), f.trader()
	f.mustPlace(maker, limit(engine.SideAsk, 100, 4))

	var last engine.PlacementOutcome
	for i := 0; i < 4; i++ {
		last = f.mustPlace(taker, limit(engine.SideBid, 100, 1))
	}
	assert.Equal(t, 1, last.EventsEvicted)
	assert.Equal(t, 3, f.market.Events.Len())
	assert.True(t, f.account(maker).NeedsReconciliation)
	require.Len(t, f.market.OrphanedEvents(maker), 1)

	f.consumeAll(maker, taker)
	assert.Equal(t, int64(-3), f.account(maker).Position.BasePositionLots)
	assert.Equal(t, int64(1), f.account(taker).Position.TakerBaseLots)

	err := f.eng.CloseOpenOrdersAccount(f.market.ID, maker)
	assert.True(t, errors.Is(err, engine.ErrAccountNotEmpty))

	n, err := f.eng.Reconcile(f.market.ID, maker)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, f.account(maker).NeedsReconciliation)
	assert.Empty(t, f.market.OrphanedEvents(maker))

	mp := f.account(maker).Position
	assert.Equal(t, int64(-4), mp.BasePositionLots)
	assertDec(t, 400, mp.QuoteFreeNative)
	tp := f.account(taker).Position
	assert.Zero(t, tp.TakerBaseLots)
	assert.Equal(t, int64(4), tp.BasePositionLots)

	n, err = f.eng.Reconcile(f.market.ID, maker)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestConsumeGivenEvents(t *testing.T) {
	f := newFixture(t, simpleParams())
	a, b, c := f.trader(), f.trader(), f.trader()
	f.mustPlace(a, limit(engine.SideAsk, 100, 1))
	f.mustPlace(c, limit(engine.SideAsk, 101, 1))
	f.mustPlace(b, limit(engine.SideBid, 101, 2))

	events := f.market.Events.Events()
	require.Len(t, events, 2)
	x, y := events[0], events[1]
	require.Equal(t, a, x.Owner)
	require.Equal(t, c, y.Owner)

	res, err := f.eng.ConsumeGivenEvents(f.market.ID, []uuid.UUID{a, b, c}, []uint64{y.Seq, 999})
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, y.Seq, res.Applied[0].Seq)
	assert.Equal(t, []uint64{999}, res.Missing)
	assert.Equal(t, 1, res.Pending)
	assertDec(t, 101, f.account(c).Position.QuoteFreeNative)

	res, err = f.eng.ConsumeGivenEvents(f.market.ID, []uuid.UUID{b}, []uint64{x.Seq})
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, []uint64{x.Seq}, res.Skipped)
	assert.Equal(t, 1, f.market.Events.Len())
}

func TestConsumeEventsLeavesOtherOwnersQueued(t *testing.T) {
	f := newFixture(t, simpleParams())
	a, b, c := f.trader(), f.trader(), f.trader()
	f.mustPlace(a, limit(engine.SideAsk, 100, 1))
	f.mustPlace(c, limit(engine.SideAsk, 100, 1))
	f.mustPlace(b, limit(engine.SideBid, 100, 2))

	res, err := f.eng.ConsumeEvents(f.market.ID, []uuid.UUID{c}, 0)
	require.NoError(t, err)
	require.Len(t, res.Applied, 1)
	assert.Equal(t, c, res.Applied[0].Owner)
	assert.Equal(t, 1, res.Pending)

	res, err = f.eng.ConsumeEvents(f.market.ID, []uuid.UUID{a}, 1)
	require.NoError(t, err)
	assert.Len(t, res.Applied, 1)
	assert.Zero(t, res.Pending)
}

// drain consumes every event, cancels every order, settles and closes every
// account and sweeps the fees. Afterwards the vaults must be empty and the
// wallets must hold exactly what was minted.
func (f *fixture) drain(owners []uuid.UUID, referrer *uuid.UUID) {
	f.t.Helper()
	t := f.t
	f.consumeAll(owners...)
	for _, o := range owners {
		_, err := f.eng.CancelAllOrders(f.market.ID, o, nil, 0)
		require.NoError(t, err)
		_, err = f.eng.SettleFunds(f.ctx, f.market.ID, o, referrer)
		require.NoError(t, err)
		assert.True(t, f.account(o).Position.IsEmpty())
		require.NoError(t, f.eng.CloseOpenOrdersAccount(f.market.ID, o))
	}
	assert.False(t, f.market.FeesAccrued.IsNegative())
	_, err := f.eng.SweepFees(f.ctx, f.market.ID, feeAdmin)
	require.NoError(t, err)

	assert.Zero(t, f.balance(f.market.ID, baseMint))
	assert.Zero(t, f.balance(f.market.ID, quoteMint))
	assert.Equal(t, 0, f.market.Bids.Len())
	assert.Equal(t, 0, f.market.Asks.Len())

	holders := append([]uuid.UUID{feeAdmin}, f.funded...)
	if referrer != nil {
		holders = append(holders, *referrer)
	}
	var base, quote uint64
	for _, o := range holders {
		base += f.balance(o, baseMint)
		quote += f.balance(o, quoteMint)
	}
	supply := uint64(len(f.funded)) * walletAmount
	assert.Equal(t, supply, base)
	assert.Equal(t, supply, quote)
}

func TestConservationOfFunds(t *testing.T) {
	params := simpleParams()
	params.BaseLotSize = 10
	params.TakerFee = decimal.RequireFromString("0.002")
	params.MakerFee = decimal.RequireFromString("0.001")
	f := newFixture(t, params)
	a, b, c, d := f.trader(), f.trader(), f.trader(), f.trader()
	owners := []uuid.UUID{a, b, c, d}

	f.mustPlace(a, limit(engine.SideBid, 100, 5))
	f.mustPlace(b, limit(engine.SideBid, 99, 3))
	f.mustPlace(c, limit(engine.SideAsk, 101, 4))

	out := f.mustPlace(d, limit(engine.SideAsk, 99, 6))
	assert.Equal(t, int64(6), out.BaseLotsMatched)
	assert.Equal(t, int64(599), out.QuoteLotsMatched)

	out = f.mustPlace(a, limit(engine.SideBid, 101, 2))
	assert.Equal(t, int64(2), out.BaseLotsMatched)

	f.consumeAll(owners...)
	var basePositions int64
	for _, o := range owners {
		p := f.account(o).Position
		assert.False(t, p.QuoteFreeNative.IsNegative())
		assert.False(t, p.BaseFreeNative.IsNegative())
		basePositions += p.BasePositionLots
	}
	assert.Zero(t, basePositions)

	f.drain(owners, nil)
}

// A maker rebate is paid out of the taker fee before any referrer share, so
// the fee pool cannot be pushed below zero.
func TestMakerRebateIsPaidBeforeReferrer(t *testing.T) {
	params := simpleParams()
	params.TakerFee = decimal.RequireFromString("0.01")
	params.MakerFee = decimal.RequireFromString("-0.01")
	params.ReferrerRebate = decimal.NewFromInt(1)
	f := newFixture(t, params)
	maker, taker, referrer := f.trader(), f.trader(), uuid.New()

	f.mustPlace(maker, limit(engine.SideAsk, 100, 10))
	out := f.mustPlace(taker, limit(engine.SideBid, 100, 10))
	assertDec(t, 10, out.TakerFees)
	assertDec(t, -10, out.MakerFees)
	assertDec(t, 0, out.ReferrerRebate)
	assertDec(t, 0, f.market.FeesAccrued)

	f.consumeAll(maker, taker)
	req, err := f.eng.SettleFunds(f.ctx, f.market.ID, taker, &referrer)
	require.NoError(t, err)
	assert.Zero(t, req.ReferrerRebate)

	req, err = f.eng.SettleFunds(f.ctx, f.market.ID, maker, nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_010), req.Quote)
	assert.Zero(t, f.balance(referrer, quoteMint))
	assert.Zero(t, f.balance(f.market.ID, quoteMint))
}

func TestConservationWithMakerRebateAndReferrer(t *testing.T) {
	tests := []struct {
		name         string
		makerFee     string
		referrerRate string
		wantFees     uint64
		wantReferrer uint64
	}{
		{"rebate equal to taker fee", "-0.01", "1", 0, 0},
		{"partial rebate", "-0.004", "0.5", 6, 6},
		{"maker fee", "0.002", "0.5", 12, 12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			params := simpleParams()
			params.TakerFee = decimal.RequireFromString("0.01")
			params.MakerFee = decimal.RequireFromString(tt.makerFee)
			params.ReferrerRebate = decimal.RequireFromString(tt.referrerRate)
			f := newFixture(t, params)
			maker, taker := f.trader(), f.trader()
			walletOnly, referrer := f.wallet(), uuid.New()

			f.mustPlace(maker, limit(engine.SideAsk, 100, 20))
			f.mustPlace(taker, limit(engine.SideBid, 100, 10))
			assert.False(t, f.market.FeesAccrued.IsNegative())

			args := engine.PlaceOrderArgs{Side: engine.SideBid, PriceLots: 100, MaxBaseLots: 10, MaxQuoteLotsIncludingFees: 2_000}
			_, err := f.eng.PlaceTakeOrder(f.ctx, f.market.ID, walletOnly, args, &referrer)
			require.NoError(t, err)
			assert.False(t, f.market.FeesAccrued.IsNegative())

			f.drain([]uuid.UUID{maker, taker}, &referrer)
			assert.Equal(t, tt.wantReferrer, f.balance(referrer, quoteMint))
			assert.Equal(t, tt.wantFees, f.balance(feeAdmin, quoteMint))
		})
	}
}

// A pegged bid locks funds at its peg limit, fills below it and has its
// remainder cancelled; the difference comes back in full.
func TestConservationWithPeggedBid(t *testing.T) {
	params := simpleParams()
	params.TakerFee = decimal.RequireFromString("0.01")
	params.MakerFee = decimal.RequireFromString("0.002")
	f := newFixture(t, params)
	maker, taker := f.trader(), f.trader()
	require.NoError(t, f.eng.StubOracleSet(f.market.ID, dec(100)))

	peg := engine.PegParams{OffsetLots: -5, LimitLots: 110}
	out, err := f.eng.PlaceOrderPegged(f.ctx, f.market.ID, maker, limit(engine.SideBid, 0, 4), peg)
	require.NoError(t, err)
	assert.Equal(t, int64(95), out.PriceLots)
	assertDec(t, 448, out.DepositQuote)

	out = f.mustPlace(taker, limit(engine.SideAsk, 95, 2))
	assert.Equal(t, int64(2), out.BaseLotsMatched)
	assertDec(t, 2, out.TakerFees)
	assertDec(t, 1, out.MakerFees)

	f.consumeAll(maker, taker)
	assertDec(t, 33, f.account(maker).Position.QuoteFreeNative)
	n, err := f.eng.CancelAllOrders(f.market.ID, maker, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assertDec(t, 257, f.account(maker).Position.QuoteFreeNative)
	assertDec(t, 3, f.market.FeesAccrued)

	f.drain([]uuid.UUID{maker, taker}, nil)
	assert.Equal(t, uint64(3), f.balance(feeAdmin, quoteMint))
}
