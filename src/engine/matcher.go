package engine

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PlaceOrderArgs struct {
	Side                      Side
	PriceLots                 int64
	MaxBaseLots               int64
	MaxQuoteLotsIncludingFees int64
	OrderType                 OrderType
	SelfTrade                 SelfTradeBehavior
	ClientOrderID             uint64
	ExpiryTimestamp           int64
	// Limit caps the resting orders visited while matching.
	Limit int
	Peg   *PegParams
}

type PlacementOutcome struct {
	OrderID            uint64
	PriceLots          int64
	BaseLotsMatched    int64
	QuoteLotsMatched   int64
	QuoteNativeMatched decimal.Decimal
	TakerFees          decimal.Decimal
	MakerFees          decimal.Decimal
	ReferrerRebate     decimal.Decimal
	Fills              int
	PostedBaseLots     int64
	Inserted           bool
	// Discarded is set when a remainder could not rest because the book was
	// full and the order was not better than the worst resting one.
	Discarded bool
	// Dropped is set when the order did nothing: a crossing post-only order
	// or one that was already expired.
	Dropped        bool
	EvictedOrderID uint64
	ExpiredRemoved int
	SelfTradeLots  int64
	DepositBase    decimal.Decimal
	DepositQuote   decimal.Decimal
	EventsEvicted  int
}

type stepKind int

const (
	stepFill stepKind = iota
	stepExpire
	stepSelfDecrement
	stepSelfCancel
)

type matchStep struct {
	kind        stepKind
	order       *Order
	qty         int64
	quoteLots   int64
	quoteNative decimal.Decimal
	takerFee    decimal.Decimal
	makerFee    decimal.Decimal
	referrer    decimal.Decimal
}

// placement is a fully checked plan for one order. Planning reads the book
// and never writes to it, so any error found while planning leaves the
// market untouched; commit applies the plan and cannot fail.
type placement struct {
	owner   uuid.UUID
	account *OpenOrdersAccount
	args    PlaceOrderArgs
	side    Side
	now     int64

	limitPrice  int64
	lockedPrice int64
	steps       []matchStep
	remaining   int64
	budget      decimal.Decimal

	matchedBase      int64
	matchedQuoteLots int64
	matchedQuote     decimal.Decimal
	takerFees        decimal.Decimal
	makerFees        decimal.Decimal
	referrer         decimal.Decimal
	fills            int
	expired          int
	selfTradeLots    int64

	// truncated is set when a self-trade stopped matching early.
	truncated bool
	// payReferrer is set on take orders whose referrer is paid directly.
	payReferrer bool

	postQty   int64
	evict     *Order
	discarded bool
	dropped   bool

	// Native amounts the taker pays into and receives from the vaults.
	needBase    decimal.Decimal
	needQuote   decimal.Decimal
	creditBase  decimal.Decimal
	creditQuote decimal.Decimal
}

func (args *PlaceOrderArgs) normalize() error {
	if !args.Side.Valid() {
		return ErrInvalidArgument.withMsg("unknown side %q", args.Side)
	}
	if args.OrderType == "" {
		args.OrderType = TypeLimit
	}
	if !args.OrderType.Valid() {
		return ErrInvalidArgument.withMsg("unknown order type %q", args.OrderType)
	}
	if args.SelfTrade == "" {
		args.SelfTrade = DecrementTake
	}
	if !args.SelfTrade.Valid() {
		return ErrInvalidArgument.withMsg("unknown self-trade behavior %q", args.SelfTrade)
	}
	if args.MaxBaseLots <= 0 {
		return ErrInvalidQuantity.withMsg("max base lots must be positive, got %d", args.MaxBaseLots)
	}
	if args.MaxQuoteLotsIncludingFees <= 0 {
		return ErrInvalidQuantity.withMsg("max quote lots must be positive, got %d", args.MaxQuoteLotsIncludingFees)
	}
	if args.ExpiryTimestamp < 0 {
		return ErrInvalidArgument.withMsg("expiry timestamp must not be negative")
	}
	if args.Limit <= 0 {
		args.Limit = DefaultMatchLimit
	}
	if args.Peg != nil {
		if args.Side == SideBid && args.Peg.LimitLots <= 0 {
			return ErrInvalidPrice.withMsg("pegged bids need a positive peg limit")
		}
		if args.Peg.LimitLots < 0 {
			return ErrInvalidPrice.withMsg("peg limit must not be negative")
		}
		if args.OrderType == TypeMarket || args.OrderType == TypePostOnlySlide {
			return ErrInvalidArgument.withMsg("order type %s cannot be pegged", args.OrderType)
		}
		return nil
	}
	if args.OrderType != TypeMarket && args.PriceLots <= 0 {
		return ErrInvalidPrice.withMsg("price must be positive, got %d", args.PriceLots)
	}
	return nil
}

// planPlacement re-anchors pegged orders, walks the opposite side and
// decides what happens to the remainder. account is nil for take orders.
func (m *Market) planPlacement(owner uuid.UUID, account *OpenOrdersAccount, args PlaceOrderArgs, now int64, oraclePrice *decimal.Decimal) (*placement, error) {
	if err := args.normalize(); err != nil {
		return nil, err
	}

	oracleLots := m.OraclePriceLots(oraclePrice)
	m.reanchor(oracleLots)

	p := &placement{
		owner:     owner,
		account:   account,
		args:      args,
		side:      args.Side,
		now:       now,
		remaining: args.MaxBaseLots,
	}
	budgetNative, err := m.Lots.QuoteNative(args.MaxQuoteLotsIncludingFees)
	if err != nil {
		return nil, err
	}
	p.budget = budgetNative

	switch {
	case args.Peg != nil:
		if oracleLots == nil {
			return nil, ErrOracleUnavailable.withMsg("market %s has no oracle price", m.ID)
		}
		p.limitPrice = peggedPrice(args.Side, *oracleLots, args.Peg)
		if p.limitPrice < 1 {
			return nil, ErrInvalidPrice.withMsg("pegged price is below one lot")
		}
	case args.OrderType == TypeMarket:
		if args.Side == SideBid {
			p.limitPrice = maxPriceLots
		} else {
			p.limitPrice = 1
		}
	default:
		p.limitPrice = args.PriceLots
	}
	p.lockedPrice = p.limitPrice
	if args.Side == SideBid && args.Peg != nil {
		p.lockedPrice = args.Peg.LimitLots
	}

	// edge case: an order that is already expired does nothing
	if args.ExpiryTimestamp != 0 && now > args.ExpiryTimestamp {
		p.dropped = true
		return p, nil
	}

	if args.OrderType.postOnly() {
		if best, ok := m.side(args.Side.Opposite()).BestValid(now); ok && crosses(args.Side, p.limitPrice, best.PriceLots) {
			if args.OrderType == TypePostOnly || args.Peg != nil {
				p.dropped = true
				return p, nil
			}
			if args.Side == SideBid {
				p.limitPrice = best.PriceLots - 1
			} else {
				p.limitPrice = best.PriceLots + 1
			}
			p.lockedPrice = p.limitPrice
			if p.limitPrice < 1 {
				p.dropped = true
				return p, nil
			}
		}
	} else if err := m.walkBook(p); err != nil {
		return nil, err
	}

	if args.OrderType == TypeFillOrKill && (p.remaining > 0 || p.truncated) {
		return nil, ErrWouldNotFullyFill.withMsg("%d of %d base lots unfilled", p.remaining, args.MaxBaseLots)
	}

	if err := m.planRemainder(p); err != nil {
		return nil, err
	}
	if err := m.planFunds(p); err != nil {
		return nil, err
	}
	return p, nil
}

// walkBook plans fills against the opposite side, best price first.
func (m *Market) walkBook(p *placement) error {
	opposite := m.side(p.side.Opposite())
	visited := 0
	var walkErr error

	opposite.IterateMatchable(p.limitPrice, func(o *Order) bool {
		if p.remaining == 0 || visited >= p.args.Limit {
			return false
		}
		// edge case: expired orders are skipped, and a few are cleared per pass
		if o.IsExpired(p.now) {
			if p.expired < dropExpiredLimit {
				p.steps = append(p.steps, matchStep{kind: stepExpire, order: o, qty: o.Quantity})
				p.expired++
			}
			return true
		}
		visited++

		qty := min(p.remaining, o.Quantity)
		if o.Owner == p.owner {
			switch p.args.SelfTrade {
			case AbortTransaction:
				walkErr = ErrSelfTradeReject.withMsg("order %d belongs to the same owner", o.ID)
				return false
			case CancelTake:
				p.truncated = true
				return false
			case CancelProvide:
				p.steps = append(p.steps, matchStep{kind: stepSelfCancel, order: o, qty: o.Quantity})
				p.selfTradeLots += o.Quantity
				return true
			default:
				p.steps = append(p.steps, matchStep{kind: stepSelfDecrement, order: o, qty: qty})
				p.selfTradeLots += qty
				p.remaining -= qty
				return true
			}
		}

		qty = m.affordable(p.side, o.PriceLots, qty, p.budget)
		if qty == 0 {
			return false
		}
		step, err := m.planFill(p, o, qty)
		if err != nil {
			walkErr = err
			return false
		}
		p.steps = append(p.steps, step)
		return true
	})
	return walkErr
}

func (m *Market) planFill(p *placement, o *Order, qty int64) (matchStep, error) {
	quoteLots, native, err := m.Lots.Notional(o.PriceLots, qty)
	if err != nil {
		return matchStep{}, err
	}
	takerFee, err := m.TakerFee(o.PriceLots, qty)
	if err != nil {
		return matchStep{}, err
	}
	makerFee, err := m.MakerFee(o.PriceLots, qty)
	if err != nil {
		return matchStep{}, err
	}
	if p.matchedBase, err = addLots(p.matchedBase, qty); err != nil {
		return matchStep{}, err
	}
	if p.matchedQuoteLots, err = addLots(p.matchedQuoteLots, quoteLots); err != nil {
		return matchStep{}, err
	}
	referrer := m.ReferrerShare(takerFee, makerFee)

	cost := native
	if p.side == SideBid {
		cost = native.Add(takerFee)
	}
	p.budget = p.budget.Sub(cost)
	p.remaining -= qty
	p.matchedQuote = p.matchedQuote.Add(native)
	p.takerFees = p.takerFees.Add(takerFee)
	p.makerFees = p.makerFees.Add(makerFee)
	p.referrer = p.referrer.Add(referrer)
	p.fills++

	return matchStep{
		kind:        stepFill,
		order:       o,
		qty:         qty,
		quoteLots:   quoteLots,
		quoteNative: native,
		takerFee:    takerFee,
		makerFee:    makerFee,
		referrer:    referrer,
	}, nil
}

// affordable returns the largest quantity up to qty whose cost at priceLots
// fits the remaining budget. Bids pay the taker fee on top of the notional.
func (m *Market) affordable(side Side, priceLots, qty int64, budget decimal.Decimal) int64 {
	cost := func(q int64) decimal.Decimal {
		lots := decimal.NewFromInt(q)
		native := decimal.NewFromInt(priceLots).Mul(lots).Mul(decimal.NewFromInt(m.Params.QuoteLotSize))
		if side == SideAsk {
			return native
		}
		var fee decimal.Decimal
		if m.Params.FeeBasis == FeeBasisAbsolute {
			fee = m.Params.TakerFee.Mul(lots)
		} else {
			fee = native.Mul(m.Params.TakerFee)
		}
		return native.Add(fee.Ceil())
	}
	if !cost(qty).GreaterThan(budget) {
		return qty
	}
	// cost is monotonic in q
	n := sort.Search(int(min(qty, int64(^uint(0)>>1))), func(i int) bool {
		return cost(int64(i) + 1).GreaterThan(budget)
	})
	return int64(n)
}

// planRemainder decides whether the unmatched remainder rests, evicting the
// worst order of a full side when the remainder is strictly better priced.
func (m *Market) planRemainder(p *placement) error {
	if p.remaining == 0 || p.truncated || !p.args.OrderType.canRest() {
		return nil
	}

	perLotLots := decimal.NewFromInt(p.lockedPrice).Mul(decimal.NewFromInt(m.Params.QuoteLotSize))
	byBudget := p.budget.Div(perLotLots).Floor()
	postQty := p.remaining
	if byBudget.LessThan(decimal.NewFromInt(postQty)) {
		postQty = byBudget.IntPart()
	}
	if postQty <= 0 {
		return nil
	}

	if p.account == nil {
		return ErrAccountNotFound.withMsg("owner %s has no open-orders account", p.owner)
	}
	if !p.account.hasFreeSlot() {
		return ErrOpenOrdersFull.withMsg("account holds %d open orders", MaxOpenOrders)
	}

	own := m.side(p.side)
	if own.IsFull() {
		worst, ok := own.Worst()
		if ok && (worst.PriceLots < 1 || betterPrice(p.side, p.limitPrice, worst.PriceLots)) {
			p.evict = worst
		} else if len(p.steps) == 0 {
			return ErrBookFull.withMsg("%s side is full and the order does not improve on its worst price", p.side)
		} else {
			p.discarded = true
			return nil
		}
	}
	p.postQty = postQty
	return nil
}

// planFunds works out what the owner pays in and what they receive.
func (m *Market) planFunds(p *placement) error {
	if m.FeesAccrued.Add(p.takerFees).Add(p.makerFees).Sub(p.referrer).IsNegative() {
		return ErrArithmeticOverflow.withMsg("fills would leave the fee pool negative")
	}
	if err := p.checkCounters(); err != nil {
		return err
	}
	matchedBaseNative, err := m.Lots.BaseNative(p.matchedBase)
	if err != nil {
		return err
	}
	if p.side == SideBid {
		p.needQuote = p.matchedQuote.Add(p.takerFees)
		p.creditBase = matchedBaseNative
		if p.postQty > 0 {
			perLot, err := m.bidReservePerLot(p.lockedPrice)
			if err != nil {
				return err
			}
			if _, err := mulLots(p.lockedPrice, p.postQty); err != nil {
				return err
			}
			p.needQuote = p.needQuote.Add(perLot.Mul(decimal.NewFromInt(p.postQty)))
		}
		return nil
	}
	p.needBase = matchedBaseNative
	p.creditQuote = p.matchedQuote.Sub(p.takerFees)
	if p.postQty > 0 {
		reserve, err := m.Lots.BaseNative(p.postQty)
		if err != nil {
			return err
		}
		p.needBase = p.needBase.Add(reserve)
	}
	return nil
}

// checkCounters verifies that the account's lot counters can take the
// plan without overflowing, so commit can add to them directly.
func (p *placement) checkCounters() error {
	if p.account == nil {
		return nil
	}
	pos := p.account.Position
	if p.side == SideBid {
		if _, err := addLots(pos.TakerBaseLots, p.matchedBase); err != nil {
			return err
		}
		if _, err := addLots(pos.BidsBaseLots, p.postQty); err != nil {
			return err
		}
		quoteLots, err := mulLots(p.lockedPrice, p.postQty)
		if err != nil {
			return err
		}
		_, err = addLots(pos.BidsQuoteLots, quoteLots)
		return err
	}
	if _, err := addLots(pos.TakerQuoteLots, p.matchedQuoteLots); err != nil {
		return err
	}
	_, err := addLots(pos.AsksBaseLots, p.postQty)
	return err
}

// shortfall is what must be pulled from the owner's wallet after the
// account's free balances are used.
func (p *placement) shortfall() (base, quote decimal.Decimal) {
	freeBase, freeQuote := decimal.Zero, decimal.Zero
	if p.account != nil {
		freeBase = p.account.Position.BaseFreeNative
		freeQuote = p.account.Position.QuoteFreeNative
	}
	return decimal.Max(decimal.Zero, p.needBase.Sub(freeBase)).Ceil(),
		decimal.Max(decimal.Zero, p.needQuote.Sub(freeQuote)).Ceil()
}

// commitPlacement applies a plan produced by planPlacement together with the
// deposits already pulled from the owner's wallet.
func (m *Market) commitPlacement(p *placement, depositBase, depositQuote decimal.Decimal) PlacementOutcome {
	out := PlacementOutcome{
		PriceLots:          p.limitPrice,
		BaseLotsMatched:    p.matchedBase,
		QuoteLotsMatched:   p.matchedQuoteLots,
		QuoteNativeMatched: p.matchedQuote,
		TakerFees:          p.takerFees,
		MakerFees:          p.makerFees,
		ReferrerRebate:     p.referrer,
		Fills:              p.fills,
		Discarded:          p.discarded,
		Dropped:            p.dropped,
		ExpiredRemoved:     p.expired,
		SelfTradeLots:      p.selfTradeLots,
		DepositBase:        depositBase,
		DepositQuote:       depositQuote,
	}
	if p.dropped {
		return out
	}

	opposite := m.side(p.side.Opposite())
	for _, step := range p.steps {
		if evicted := m.commitStep(p, opposite, step); evicted != nil {
			out.EventsEvicted++
		}
	}

	// Protocol fees: taker fees net of referrer shares plus maker fees.
	// Account placements hold the referrer share in the pool until settle.
	m.FeesAccrued = m.FeesAccrued.Add(p.takerFees).Sub(p.referrer).Add(p.makerFees)
	switch {
	case p.account != nil:
		m.ReferrerRebatesAccrued = m.ReferrerRebatesAccrued.Add(p.referrer)
		m.creditTaker(p, depositBase, depositQuote)
	case !p.payReferrer:
		m.FeesAccrued = m.FeesAccrued.Add(p.referrer)
	}

	if p.evict != nil {
		own := m.side(p.side)
		own.Remove(p.evict.ID)
		ev := outEvent(p.evict, p.evict.Quantity, true, OutEvicted, p.now)
		ev.Seq = m.nextSeq()
		if m.pushEvent(ev) != nil {
			out.EventsEvicted++
		}
		out.EvictedOrderID = p.evict.ID
	}

	if p.postQty > 0 {
		order := &Order{
			ID:              m.nextSeq(),
			Owner:           p.owner,
			ClientOrderID:   p.args.ClientOrderID,
			Side:            p.side,
			PriceLots:       p.limitPrice,
			Quantity:        p.postQty,
			Peg:             p.args.Peg,
			ExpiryTimestamp: p.args.ExpiryTimestamp,
			SelfTrade:       p.args.SelfTrade,
			LockedPriceLots: p.lockedPrice,
			Timestamp:       p.now,
		}
		// capacity was checked while planning and an eviction made room
		if err := m.side(p.side).Insert(order); err != nil {
			panic(fmt.Sprintf("insert of planned order %d: %v", order.ID, err))
		}
		p.account.addOpenOrder(order)
		// counters were checked by checkCounters
		pos := &p.account.Position
		if p.side == SideBid {
			pos.BidsBaseLots += p.postQty
			pos.BidsQuoteLots += p.lockedPrice * p.postQty
		} else {
			pos.AsksBaseLots += p.postQty
		}
		out.OrderID = order.ID
		out.PostedBaseLots = p.postQty
		out.Inserted = true
	}
	return out
}

func (m *Market) commitStep(p *placement, opposite *BookSide, step matchStep) *Event {
	o := step.order
	o.Quantity -= step.qty
	removed := o.Quantity == 0
	if removed {
		opposite.Remove(o.ID)
	}

	var ev Event
	switch step.kind {
	case stepFill:
		ev = Event{
			Kind:            EventFill,
			Timestamp:       p.now,
			Owner:           o.Owner,
			Side:            o.Side,
			OrderID:         o.ID,
			ClientOrderID:   o.ClientOrderID,
			LockedPriceLots: o.LockedPriceLots,
			Quantity:        step.qty,
			OrderRemoved:    removed,
			Taker:           p.owner,
			TakerPending:    p.account != nil,
			PriceLots:       o.PriceLots,
			QuoteLots:       step.quoteLots,
			QuoteNative:     step.quoteNative,
			MakerFee:        step.makerFee,
			TakerFee:        step.takerFee,
		}
	case stepExpire:
		ev = outEvent(o, step.qty, removed, OutExpired, p.now)
	default:
		ev = outEvent(o, step.qty, removed, OutSelfTrade, p.now)
	}
	ev.Seq = m.nextSeq()
	return m.pushEvent(ev)
}

func (m *Market) creditTaker(p *placement, depositBase, depositQuote decimal.Decimal) {
	pos := &p.account.Position
	pos.BaseFreeNative = pos.BaseFreeNative.Add(depositBase).Sub(p.needBase).Add(p.creditBase)
	pos.QuoteFreeNative = pos.QuoteFreeNative.Add(depositQuote).Sub(p.needQuote).Add(p.creditQuote)
	if p.side == SideBid {
		pos.TakerBaseLots += p.matchedBase
	} else {
		pos.TakerQuoteLots += p.matchedQuoteLots
	}
	pos.TakerVolume = pos.TakerVolume.Add(p.matchedQuote)
	pos.ReferrerRebatesAvailable = pos.ReferrerRebatesAvailable.Add(p.referrer)
}

func outEvent(o *Order, qty int64, removed bool, reason OutReason, now int64) Event {
	return Event{
		Kind:            EventOut,
		Timestamp:       now,
		Owner:           o.Owner,
		Side:            o.Side,
		OrderID:         o.ID,
		ClientOrderID:   o.ClientOrderID,
		LockedPriceLots: o.LockedPriceLots,
		Quantity:        qty,
		OrderRemoved:    removed,
		Reason:          reason,
	}
}
