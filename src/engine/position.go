package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Position is an account's standing on one market.
type Position struct {
	// Lots reserved by resting orders.
	BidsBaseLots  int64
	BidsQuoteLots int64
	AsksBaseLots  int64

	// Net traded position, updated when fills are consumed.
	BasePositionLots    int64
	QuotePositionNative decimal.Decimal

	// Taker fills already paid out but not yet seen by event consumption.
	TakerBaseLots  int64
	TakerQuoteLots int64

	BaseFreeNative  decimal.Decimal
	QuoteFreeNative decimal.Decimal

	ReferrerRebatesAvailable decimal.Decimal
	MakerVolume              decimal.Decimal
	TakerVolume              decimal.Decimal
}

// IsEmpty reports whether nothing is reserved, pending or withdrawable.
func (p *Position) IsEmpty() bool {
	return p.BidsBaseLots == 0 && p.AsksBaseLots == 0 &&
		p.TakerBaseLots == 0 && p.TakerQuoteLots == 0 &&
		p.BaseFreeNative.IsZero() && p.QuoteFreeNative.IsZero() &&
		p.ReferrerRebatesAvailable.IsZero()
}

type OpenOrdersAccount struct {
	Owner      uuid.UUID
	Market     uuid.UUID
	Position   Position
	OpenOrders []OpenOrder
	// NeedsReconciliation is set when one of the account's events was
	// evicted from a full queue before being consumed.
	NeedsReconciliation bool
}

func newOpenOrdersAccount(owner, market uuid.UUID) *OpenOrdersAccount {
	return &OpenOrdersAccount{
		Owner:      owner,
		Market:     market,
		OpenOrders: make([]OpenOrder, 0, MaxOpenOrders),
	}
}

func (a *OpenOrdersAccount) hasFreeSlot() bool {
	return len(a.OpenOrders) < MaxOpenOrders
}

func (a *OpenOrdersAccount) addOpenOrder(o *Order) {
	a.OpenOrders = append(a.OpenOrders, OpenOrder{
		ID:              o.ID,
		ClientOrderID:   o.ClientOrderID,
		Side:            o.Side,
		LockedPriceLots: o.LockedPriceLots,
		Pegged:          o.IsPegged(),
	})
}

func (a *OpenOrdersAccount) removeOpenOrder(id uint64) {
	for i, oo := range a.OpenOrders {
		if oo.ID == id {
			a.OpenOrders = append(a.OpenOrders[:i], a.OpenOrders[i+1:]...)
			return
		}
	}
}

func (a *OpenOrdersAccount) FindOpenOrder(id uint64) (OpenOrder, bool) {
	for _, oo := range a.OpenOrders {
		if oo.ID == id {
			return oo, true
		}
	}
	return OpenOrder{}, false
}

// releaseReservation returns qty lots of a resting order's reservation to
// the free balances.
func (a *OpenOrdersAccount) releaseReservation(m *Market, side Side, lockedPriceLots, qty int64) error {
	p := &a.Position
	if side == SideAsk {
		native, err := m.Lots.BaseNative(qty)
		if err != nil {
			return err
		}
		p.AsksBaseLots -= qty
		p.BaseFreeNative = p.BaseFreeNative.Add(native)
		return nil
	}
	perLot, err := m.bidReservePerLot(lockedPriceLots)
	if err != nil {
		return err
	}
	quoteLots, err := mulLots(lockedPriceLots, qty)
	if err != nil {
		return err
	}
	p.BidsBaseLots -= qty
	p.BidsQuoteLots -= quoteLots
	p.QuoteFreeNative = p.QuoteFreeNative.Add(perLot.Mul(decimal.NewFromInt(qty)))
	return nil
}

// makerFill returns the position after the maker half of a fill event.
// Nothing is written, so a failure leaves the account untouched.
func (p Position) makerFill(m *Market, ev Event) (Position, error) {
	q := decimal.NewFromInt(ev.Quantity)
	var err error
	if ev.Side == SideBid {
		base, err := m.Lots.BaseNative(ev.Quantity)
		if err != nil {
			return p, err
		}
		perLot, err := m.bidReservePerLot(ev.LockedPriceLots)
		if err != nil {
			return p, err
		}
		lockedQuoteLots, err := mulLots(ev.LockedPriceLots, ev.Quantity)
		if err != nil {
			return p, err
		}
		if p.BasePositionLots, err = addLots(p.BasePositionLots, ev.Quantity); err != nil {
			return p, err
		}
		paid := ev.QuoteNative.Add(ev.MakerFee)
		p.BidsBaseLots -= ev.Quantity
		p.BidsQuoteLots -= lockedQuoteLots
		p.BaseFreeNative = p.BaseFreeNative.Add(base)
		p.QuoteFreeNative = p.QuoteFreeNative.Add(perLot.Mul(q).Sub(paid))
		p.QuotePositionNative = p.QuotePositionNative.Sub(paid)
	} else {
		if p.BasePositionLots, err = addLots(p.BasePositionLots, -ev.Quantity); err != nil {
			return p, err
		}
		received := ev.QuoteNative.Sub(ev.MakerFee)
		p.AsksBaseLots -= ev.Quantity
		p.QuoteFreeNative = p.QuoteFreeNative.Add(received)
		p.QuotePositionNative = p.QuotePositionNative.Add(received)
	}
	p.MakerVolume = p.MakerVolume.Add(ev.QuoteNative)
	return p, nil
}

// takerFill returns the position after a consumed fill moves from the
// pending taker counters into the net position. Free balances were credited
// at match time.
func (p Position) takerFill(ev Event) (Position, error) {
	var err error
	if ev.Side == SideAsk {
		// taker bought
		if p.BasePositionLots, err = addLots(p.BasePositionLots, ev.Quantity); err != nil {
			return p, err
		}
		p.TakerBaseLots -= ev.Quantity
		p.QuotePositionNative = p.QuotePositionNative.Sub(ev.QuoteNative.Add(ev.TakerFee))
		return p, nil
	}
	if p.BasePositionLots, err = addLots(p.BasePositionLots, -ev.Quantity); err != nil {
		return p, err
	}
	p.TakerQuoteLots -= ev.QuoteLots
	p.QuotePositionNative = p.QuotePositionNative.Add(ev.QuoteNative.Sub(ev.TakerFee))
	return p, nil
}

func (a *OpenOrdersAccount) applyOut(m *Market, ev Event) error {
	if err := a.releaseReservation(m, ev.Side, ev.LockedPriceLots, ev.Quantity); err != nil {
		return err
	}
	if ev.OrderRemoved {
		a.removeOpenOrder(ev.OrderID)
	}
	return nil
}
