package engine

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testMarketID = uuid.MustParse("6f1c3b52-8d0e-4a57-9c1e-2b7d4f9a0e11")
	testAdmin    = uuid.MustParse("0a9e8d7c-6b5a-4c3d-8e2f-1a0b9c8d7e6f")
)

func restingOrder(id uint64, side Side, price, qty int64) *Order {
	return &Order{ID: id, Owner: uuid.New(), Side: side, PriceLots: price, Quantity: qty, LockedPriceLots: price}
}

func TestBookSidePriority(t *testing.T) {
	bids := NewBookSide(SideBid, 10)
	require.NoError(t, bids.Insert(restingOrder(1, SideBid, 100, 1)))
	require.NoError(t, bids.Insert(restingOrder(2, SideBid, 101, 1)))
	require.NoError(t, bids.Insert(restingOrder(3, SideBid, 101, 1)))
	require.NoError(t, bids.Insert(restingOrder(4, SideBid, 99, 1)))

	best, ok := bids.Best()
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID, "highest price, earliest sequence first")

	worst, ok := bids.Worst()
	require.True(t, ok)
	assert.Equal(t, uint64(4), worst.ID)

	var order []uint64
	bids.Ascend(func(o *Order) bool {
		order = append(order, o.ID)
		return true
	})
	assert.Equal(t, []uint64{2, 3, 1, 4}, order)

	asks := NewBookSide(SideAsk, 10)
	require.NoError(t, asks.Insert(restingOrder(5, SideAsk, 105, 1)))
	require.NoError(t, asks.Insert(restingOrder(6, SideAsk, 103, 1)))
	best, ok = asks.Best()
	require.True(t, ok)
	assert.Equal(t, uint64(6), best.ID)
}

func TestBookSideIterateMatchable(t *testing.T) {
	asks := NewBookSide(SideAsk, 10)
	require.NoError(t, asks.Insert(restingOrder(1, SideAsk, 100, 1)))
	require.NoError(t, asks.Insert(restingOrder(2, SideAsk, 101, 1)))
	require.NoError(t, asks.Insert(restingOrder(3, SideAsk, 102, 1)))

	var seen []uint64
	asks.IterateMatchable(101, func(o *Order) bool {
		seen = append(seen, o.ID)
		return true
	})
	assert.Equal(t, []uint64{1, 2}, seen, "a bid at 101 crosses asks up to 101")
}

func TestBookSideCapacityAndRemove(t *testing.T) {
	bs := NewBookSide(SideAsk, 2)
	require.NoError(t, bs.Insert(restingOrder(1, SideAsk, 100, 1)))
	require.NoError(t, bs.Insert(restingOrder(2, SideAsk, 100, 1)))
	assert.True(t, bs.IsFull())

	err := bs.Insert(restingOrder(3, SideAsk, 99, 1))
	assert.True(t, errors.Is(err, ErrBookFull))

	o, ok := bs.Remove(1)
	require.True(t, ok)
	assert.Equal(t, uint64(1), o.ID)
	_, ok = bs.Remove(1)
	assert.False(t, ok)
	assert.Equal(t, 1, bs.Len())
}

func TestBookSideBestValidSkipsExpired(t *testing.T) {
	bs := NewBookSide(SideBid, 10)
	stale := restingOrder(1, SideBid, 110, 1)
	stale.ExpiryTimestamp = 50
	require.NoError(t, bs.Insert(stale))
	require.NoError(t, bs.Insert(restingOrder(2, SideBid, 100, 1)))

	best, ok := bs.BestValid(100)
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID)

	best, ok = bs.BestValid(50)
	require.True(t, ok)
	assert.Equal(t, uint64(1), best.ID, "expiry is inclusive of its own timestamp")
}

func TestBookSideLevels(t *testing.T) {
	bs := NewBookSide(SideAsk, 10)
	require.NoError(t, bs.Insert(restingOrder(1, SideAsk, 100, 3)))
	require.NoError(t, bs.Insert(restingOrder(2, SideAsk, 100, 2)))
	require.NoError(t, bs.Insert(restingOrder(3, SideAsk, 101, 7)))
	require.NoError(t, bs.Insert(restingOrder(4, SideAsk, 102, 1)))

	levels := bs.Levels(2)
	require.Len(t, levels, 2)
	assert.Equal(t, Level{PriceLots: 100, Quantity: 5, Orders: 2}, levels[0])
	assert.Equal(t, Level{PriceLots: 101, Quantity: 7, Orders: 1}, levels[1])

	assert.Len(t, bs.Levels(0), 3)
}

func TestPeggedPrice(t *testing.T) {
	oracle := decimal.RequireFromString("100.4")

	assert.Equal(t, int64(98), peggedPrice(SideBid, oracle, &PegParams{OffsetLots: -2, LimitLots: 1000}))
	assert.Equal(t, int64(99), peggedPrice(SideAsk, oracle, &PegParams{OffsetLots: -2}))

	// clamped by the limit
	assert.Equal(t, int64(95), peggedPrice(SideBid, oracle, &PegParams{OffsetLots: 0, LimitLots: 95}))
	assert.Equal(t, int64(120), peggedPrice(SideAsk, oracle, &PegParams{OffsetLots: 0, LimitLots: 120}))

	// below one lot cannot trade
	assert.Zero(t, peggedPrice(SideBid, oracle, &PegParams{OffsetLots: -200, LimitLots: 1000}))
}

func TestReanchorPeggedParksWithoutOracle(t *testing.T) {
	bs := NewBookSide(SideBid, 10)
	pegged := restingOrder(1, SideBid, 100, 1)
	pegged.Peg = &PegParams{OffsetLots: -1, LimitLots: 500}
	require.NoError(t, bs.Insert(pegged))
	require.NoError(t, bs.Insert(restingOrder(2, SideBid, 90, 1)))

	bs.ReanchorPegged(nil)
	best, ok := bs.Best()
	require.True(t, ok)
	assert.Equal(t, uint64(2), best.ID, "parked order is invisible to matching")
	worst, _ := bs.Worst()
	assert.Equal(t, uint64(1), worst.ID, "parked order ranks worst")
	assert.Equal(t, 2, bs.Len())

	price := decimal.NewFromInt(200)
	bs.ReanchorPegged(&price)
	best, _ = bs.Best()
	assert.Equal(t, uint64(1), best.ID)
	assert.Equal(t, int64(199), best.PriceLots)

	_, ok = bs.Remove(1)
	assert.True(t, ok)
}
