package engine

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultBookCapacity       = 1024
	DefaultEventQueueCapacity = 600
	MaxOpenOrders             = 24
	DefaultMatchLimit         = 50
	// dropExpiredLimit bounds how many expired orders one placement clears.
	dropExpiredLimit = 5

	maxPriceLots int64 = math.MaxInt64
)

// FeeBasis selects how MakerFee and TakerFee are read.
type FeeBasis string

const (
	// FeeBasisRate charges notional × rate.
	FeeBasisRate FeeBasis = "RATE"
	// FeeBasisAbsolute charges a fixed native quote amount per base lot.
	FeeBasisAbsolute FeeBasis = "ABSOLUTE"
)

type MarketParams struct {
	Name         string
	BaseMint     string
	QuoteMint    string
	BaseLotSize  int64
	QuoteLotSize int64
	// MakerFee may be negative, in which case makers earn a rebate.
	MakerFee decimal.Decimal
	TakerFee decimal.Decimal
	FeeBasis FeeBasis
	// ReferrerRebate is the share of each taker fee owed to a referrer.
	ReferrerRebate     decimal.Decimal
	CollectFeeAdmin    uuid.UUID
	BookCapacity       int
	EventQueueCapacity int
}

func (p *MarketParams) applyDefaults() {
	if p.FeeBasis == "" {
		p.FeeBasis = FeeBasisRate
	}
	if p.BookCapacity == 0 {
		p.BookCapacity = DefaultBookCapacity
	}
	if p.EventQueueCapacity == 0 {
		p.EventQueueCapacity = DefaultEventQueueCapacity
	}
}

func (p MarketParams) Validate() error {
	if p.BaseMint == "" || p.QuoteMint == "" || p.BaseMint == p.QuoteMint {
		return ErrInvalidMarketParams.withMsg("base and quote mints must be distinct and set")
	}
	if p.BaseLotSize <= 0 || p.QuoteLotSize <= 0 {
		return ErrInvalidMarketParams.withMsg("lot sizes must be positive")
	}
	if p.FeeBasis != FeeBasisRate && p.FeeBasis != FeeBasisAbsolute {
		return ErrInvalidMarketParams.withMsg("unknown fee basis %q", p.FeeBasis)
	}
	if p.TakerFee.IsNegative() {
		return ErrInvalidMarketParams.withMsg("taker fee must not be negative")
	}
	if p.MakerFee.GreaterThan(p.TakerFee) {
		return ErrInvalidMarketParams.withMsg("maker fee must not exceed taker fee")
	}
	if p.MakerFee.Add(p.TakerFee).IsNegative() {
		return ErrInvalidMarketParams.withMsg("maker rebate must not exceed taker fee")
	}
	if p.FeeBasis == FeeBasisRate {
		one := decimal.NewFromInt(1)
		if p.TakerFee.GreaterThanOrEqual(one) || p.MakerFee.LessThanOrEqual(one.Neg()) {
			return ErrInvalidMarketParams.withMsg("fee rates must lie in (-1, 1)")
		}
	}
	if p.ReferrerRebate.IsNegative() || p.ReferrerRebate.GreaterThan(decimal.NewFromInt(1)) {
		return ErrInvalidMarketParams.withMsg("referrer rebate must lie in [0, 1]")
	}
	if p.BookCapacity <= 0 || p.EventQueueCapacity <= 0 {
		return ErrInvalidMarketParams.withMsg("capacities must be positive")
	}
	if p.CollectFeeAdmin == uuid.Nil {
		return ErrInvalidMarketParams.withMsg("collect fee admin is required")
	}
	return nil
}

// Market owns both sides of the book, the event queue and the open-orders
// accounts registered on it. It is not safe for concurrent use; callers
// serialize instructions.
type Market struct {
	ID        uuid.UUID
	Params    MarketParams
	Lots      Lots
	Bids      *BookSide
	Asks      *BookSide
	Events    *EventQueue
	CreatedAt time.Time

	FeesAccrued            decimal.Decimal
	FeesSwept              decimal.Decimal
	ReferrerRebatesAccrued decimal.Decimal
	SeqNum                 uint64

	accounts map[uuid.UUID]*OpenOrdersAccount
	orphaned map[uuid.UUID][]Event
}

func NewMarket(id uuid.UUID, params MarketParams) (*Market, error) {
	params.applyDefaults()
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Market{
		ID:        id,
		Params:    params,
		Lots:      Lots{BaseLotSize: params.BaseLotSize, QuoteLotSize: params.QuoteLotSize},
		Bids:      NewBookSide(SideBid, params.BookCapacity),
		Asks:      NewBookSide(SideAsk, params.BookCapacity),
		Events:    NewEventQueue(params.EventQueueCapacity),
		CreatedAt: time.Now(),
		accounts:  make(map[uuid.UUID]*OpenOrdersAccount),
		orphaned:  make(map[uuid.UUID][]Event),
	}, nil
}

func (m *Market) side(s Side) *BookSide {
	if s == SideBid {
		return m.Bids
	}
	return m.Asks
}

func (m *Market) nextSeq() uint64 {
	m.SeqNum++
	return m.SeqNum
}

// Account returns the open-orders account of owner on this market.
func (m *Market) Account(owner uuid.UUID) (*OpenOrdersAccount, bool) {
	a, ok := m.accounts[owner]
	return a, ok
}

func (m *Market) openAccount(owner uuid.UUID) (*OpenOrdersAccount, error) {
	if _, ok := m.accounts[owner]; ok {
		return nil, ErrAccountExists.withMsg("owner %s already has an account", owner)
	}
	a := newOpenOrdersAccount(owner, m.ID)
	m.accounts[owner] = a
	return a, nil
}

// Accounts returns the number of registered open-orders accounts.
func (m *Market) Accounts() int {
	return len(m.accounts)
}

// OrphanedEvents returns the evicted events waiting for owner's reconciliation.
func (m *Market) OrphanedEvents(owner uuid.UUID) []Event {
	return append([]Event(nil), m.orphaned[owner]...)
}

// pushEvent appends ev and parks whatever the queue had to evict.
func (m *Market) pushEvent(ev Event) *Event {
	evicted := m.Events.Push(ev)
	if evicted != nil {
		m.orphan(*evicted)
	}
	return evicted
}

func (m *Market) orphan(ev Event) {
	m.orphaned[ev.Owner] = append(m.orphaned[ev.Owner], ev)
	if a, ok := m.accounts[ev.Owner]; ok {
		a.NeedsReconciliation = true
	}
}

// TakerFee is the fee charged to a taker for baseLots at priceLots, rounded
// up to whole native units.
func (m *Market) TakerFee(priceLots, baseLots int64) (decimal.Decimal, error) {
	raw, err := m.rawFee(m.Params.TakerFee, priceLots, baseLots)
	if err != nil {
		return decimal.Zero, err
	}
	return raw.Ceil(), nil
}

// MakerFee rounds toward the protocol as well: a positive fee is rounded up
// and a rebate (negative fee) is rounded toward zero.
func (m *Market) MakerFee(priceLots, baseLots int64) (decimal.Decimal, error) {
	raw, err := m.rawFee(m.Params.MakerFee, priceLots, baseLots)
	if err != nil {
		return decimal.Zero, err
	}
	return raw.Ceil(), nil
}

func (m *Market) rawFee(fee decimal.Decimal, priceLots, baseLots int64) (decimal.Decimal, error) {
	if m.Params.FeeBasis == FeeBasisAbsolute {
		return fee.Mul(decimal.NewFromInt(baseLots)), nil
	}
	_, native, err := m.Lots.Notional(priceLots, baseLots)
	if err != nil {
		return decimal.Zero, err
	}
	return native.Mul(fee), nil
}

// ReferrerShare is the part of a fill's protocol fee owed to a referrer,
// rounded down. The protocol fee is the taker fee net of the maker fee.
func (m *Market) ReferrerShare(takerFee, makerFee decimal.Decimal) decimal.Decimal {
	net := decimal.Max(decimal.Zero, takerFee.Add(makerFee))
	return net.Mul(m.Params.ReferrerRebate).Floor()
}

// bidReservePerLot is the native quote a resting bid locks per base lot:
// the notional at its locked price plus the taker fee on one lot.
func (m *Market) bidReservePerLot(lockedPriceLots int64) (decimal.Decimal, error) {
	_, native, err := m.Lots.Notional(lockedPriceLots, 1)
	if err != nil {
		return decimal.Zero, err
	}
	fee, err := m.TakerFee(lockedPriceLots, 1)
	if err != nil {
		return decimal.Zero, err
	}
	return native.Add(fee), nil
}

// OraclePriceLots converts a native oracle price to lots. A nil or
// non-positive price yields nil.
func (m *Market) OraclePriceLots(price *decimal.Decimal) *decimal.Decimal {
	if price == nil || !price.IsPositive() {
		return nil
	}
	lots := m.Lots.NativePriceToLots(*price)
	return &lots
}

// reanchor re-prices pegged orders on both sides for one matching pass.
func (m *Market) reanchor(oraclePriceLots *decimal.Decimal) {
	m.Bids.ReanchorPegged(oraclePriceLots)
	m.Asks.ReanchorPegged(oraclePriceLots)
}

// Snapshot is a read-only view of the book.
type Snapshot struct {
	Bids []Level
	Asks []Level
}

func (m *Market) Snapshot(depth int) Snapshot {
	return Snapshot{Bids: m.Bids.Levels(depth), Asks: m.Asks.Levels(depth)}
}
