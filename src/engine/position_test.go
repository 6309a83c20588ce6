package engine

import (
	"errors"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fillFixture(t *testing.T) (*Market, *OpenOrdersAccount, *OpenOrdersAccount, Event) {
	t.Helper()
	m, err := NewMarket(testMarketID, MarketParams{
		BaseMint:        "BASE",
		QuoteMint:       "QUOTE",
		BaseLotSize:     1,
		QuoteLotSize:    1,
		CollectFeeAdmin: testAdmin,
	})
	require.NoError(t, err)
	maker, err := m.openAccount(uuid.New())
	require.NoError(t, err)
	taker, err := m.openAccount(uuid.New())
	require.NoError(t, err)

	maker.Position.BidsBaseLots = 2
	maker.Position.BidsQuoteLots = 20
	taker.Position.TakerQuoteLots = 20
	ev := Event{
		Kind:            EventFill,
		Seq:             1,
		Owner:           maker.Owner,
		Side:            SideBid,
		OrderID:         7,
		LockedPriceLots: 10,
		Quantity:        2,
		Taker:           taker.Owner,
		TakerPending:    true,
		PriceLots:       10,
		QuoteLots:       20,
		QuoteNative:     decimal.NewFromInt(20),
	}
	return m, maker, taker, ev
}

func TestApplyFillRejectsMakerPositionOverflow(t *testing.T) {
	m, maker, taker, ev := fillFixture(t)
	maker.Position.BasePositionLots = math.MaxInt64 - 1
	makerBefore, takerBefore := maker.Position, taker.Position

	err := m.applyEvent(ev)
	assert.True(t, errors.Is(err, ErrArithmeticOverflow), "got %v", err)
	assert.Equal(t, makerBefore, maker.Position)
	assert.Equal(t, takerBefore, taker.Position)
}

func TestApplyFillRejectsTakerPositionOverflow(t *testing.T) {
	m, maker, taker, ev := fillFixture(t)
	taker.Position.BasePositionLots = math.MinInt64 + 1
	makerBefore, takerBefore := maker.Position, taker.Position

	err := m.applyEvent(ev)
	assert.True(t, errors.Is(err, ErrArithmeticOverflow), "got %v", err)
	assert.Equal(t, makerBefore, maker.Position, "maker half must not be committed alone")
	assert.Equal(t, takerBefore, taker.Position)
}

func TestApplyFillMovesBothHalves(t *testing.T) {
	m, maker, taker, ev := fillFixture(t)

	require.NoError(t, m.applyEvent(ev))
	assert.Equal(t, int64(2), maker.Position.BasePositionLots)
	assert.Zero(t, maker.Position.BidsBaseLots)
	assert.Zero(t, maker.Position.BidsQuoteLots)
	assert.True(t, maker.Position.BaseFreeNative.Equal(decimal.NewFromInt(2)))
	assert.Equal(t, int64(-2), taker.Position.BasePositionLots)
	assert.Zero(t, taker.Position.TakerQuoteLots)
	assert.True(t, taker.Position.QuotePositionNative.Equal(decimal.NewFromInt(20)))
}
