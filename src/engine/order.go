package engine

import (
	"github.com/google/uuid"
)

type Side string

const (
	SideBid Side = "BID"
	SideAsk Side = "ASK"
)

func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

func (s Side) Valid() bool {
	return s == SideBid || s == SideAsk
}

type OrderType string

const (
	TypeLimit             OrderType = "LIMIT"
	TypeImmediateOrCancel OrderType = "IMMEDIATE_OR_CANCEL"
	TypeFillOrKill        OrderType = "FILL_OR_KILL"
	TypePostOnly          OrderType = "POST_ONLY"
	TypePostOnlySlide     OrderType = "POST_ONLY_SLIDE"
	TypeMarket            OrderType = "MARKET"
)

func (t OrderType) Valid() bool {
	switch t {
	case TypeLimit, TypeImmediateOrCancel, TypeFillOrKill, TypePostOnly, TypePostOnlySlide, TypeMarket:
		return true
	}
	return false
}

// canRest reports whether an unmatched remainder of this type may be posted.
func (t OrderType) canRest() bool {
	return t == TypeLimit || t == TypePostOnly || t == TypePostOnlySlide
}

func (t OrderType) postOnly() bool {
	return t == TypePostOnly || t == TypePostOnlySlide
}

type SelfTradeBehavior string

const (
	// DecrementTake shrinks both orders by the overlapping quantity.
	DecrementTake SelfTradeBehavior = "DECREMENT_TAKE"
	// CancelProvide removes the resting order and keeps matching.
	CancelProvide SelfTradeBehavior = "CANCEL_PROVIDE"
	// CancelTake stops matching and drops the incoming remainder.
	CancelTake SelfTradeBehavior = "CANCEL_TAKE"
	// AbortTransaction fails the placement.
	AbortTransaction SelfTradeBehavior = "ABORT_TRANSACTION"
)

func (b SelfTradeBehavior) Valid() bool {
	switch b {
	case DecrementTake, CancelProvide, CancelTake, AbortTransaction:
		return true
	}
	return false
}

// PegParams ties an order's price to the oracle. Limit is the highest price
// a pegged bid may reach or the lowest a pegged ask may reach; 0 leaves an
// ask unclamped.
type PegParams struct {
	OffsetLots int64
	LimitLots  int64
}

// Order is a resting order. ID doubles as the time-priority sequence number.
type Order struct {
	ID              uint64
	Owner           uuid.UUID
	ClientOrderID   uint64
	Side            Side
	PriceLots       int64
	Quantity        int64
	Peg             *PegParams
	ExpiryTimestamp int64
	SelfTrade       SelfTradeBehavior
	// LockedPriceLots is the price a bid's quote reservation was taken at.
	LockedPriceLots int64
	Timestamp       int64
}

func (o *Order) IsPegged() bool {
	return o.Peg != nil
}

// IsExpired treats a zero expiry as never expiring.
func (o *Order) IsExpired(now int64) bool {
	return o.ExpiryTimestamp != 0 && now > o.ExpiryTimestamp
}

// crosses reports whether an incoming order on side with limit price
// limitLots can trade against a resting price of restingLots.
func crosses(side Side, limitLots, restingLots int64) bool {
	if side == SideBid {
		return limitLots >= restingLots
	}
	return limitLots <= restingLots
}

// betterPrice reports whether a is strictly better than b for a resting
// order on side.
func betterPrice(side Side, a, b int64) bool {
	if side == SideBid {
		return a > b
	}
	return a < b
}

// OpenOrder is the account-side slot of a resting order.
type OpenOrder struct {
	ID              uint64
	ClientOrderID   uint64
	Side            Side
	LockedPriceLots int64
	Pegged          bool
}
