package engine

import (
	"github.com/google/btree"
	"github.com/shopspring/decimal"
)

// bookItem keys a resting order by (price, sequence). Bids sort by price
// descending and asks ascending, so Min() is always the best order.
type bookItem struct {
	side  Side
	price int64
	id    uint64
	order *Order
}

func (b *bookItem) Less(than btree.Item) bool {
	other := than.(*bookItem)
	if b.price != other.price {
		if b.side == SideBid {
			return b.price > other.price
		}
		return b.price < other.price
	}
	return b.id < other.id
}

// BookSide holds the resting orders of one side of one market.
// Pegged orders without a usable price are parked outside the tree and are
// invisible to matching until the next re-anchor gives them one.
type BookSide struct {
	Side     Side
	Capacity int

	tree   *btree.BTree
	orders map[uint64]*Order
	parked map[uint64]*Order
}

func NewBookSide(side Side, capacity int) *BookSide {
	return &BookSide{
		Side:     side,
		Capacity: capacity,
		tree:     btree.New(32),
		orders:   make(map[uint64]*Order),
		parked:   make(map[uint64]*Order),
	}
}

func (bs *BookSide) key(o *Order) *bookItem {
	return &bookItem{side: bs.Side, price: o.PriceLots, id: o.ID}
}

// Len counts every resting order, parked ones included.
func (bs *BookSide) Len() int {
	return len(bs.orders)
}

func (bs *BookSide) IsFull() bool {
	return len(bs.orders) >= bs.Capacity
}

// Insert adds a resting order. The caller decides on eviction beforehand;
// Insert only refuses when the side is already at capacity.
func (bs *BookSide) Insert(o *Order) error {
	if bs.IsFull() {
		return ErrBookFull.withMsg("%s side holds %d orders", bs.Side, bs.Capacity)
	}
	bs.orders[o.ID] = o
	if o.PriceLots < 1 {
		bs.parked[o.ID] = o
		return nil
	}
	item := bs.key(o)
	item.order = o
	bs.tree.ReplaceOrInsert(item)
	return nil
}

func (bs *BookSide) Remove(id uint64) (*Order, bool) {
	o, ok := bs.orders[id]
	if !ok {
		return nil, false
	}
	delete(bs.orders, id)
	if _, isParked := bs.parked[id]; isParked {
		delete(bs.parked, id)
	} else {
		bs.tree.Delete(bs.key(o))
	}
	return o, true
}

func (bs *BookSide) Get(id uint64) (*Order, bool) {
	o, ok := bs.orders[id]
	return o, ok
}

// Best returns the highest-priority order that can currently match.
func (bs *BookSide) Best() (*Order, bool) {
	item := bs.tree.Min()
	if item == nil {
		return nil, false
	}
	return item.(*bookItem).order, true
}

// BestValid skips orders that are expired at now.
func (bs *BookSide) BestValid(now int64) (*Order, bool) {
	var best *Order
	bs.tree.Ascend(func(i btree.Item) bool {
		o := i.(*bookItem).order
		if o.IsExpired(now) {
			return true
		}
		best = o
		return false
	})
	return best, best != nil
}

// Worst returns the lowest-priority order. Parked pegged orders rank below
// every priced order.
func (bs *BookSide) Worst() (*Order, bool) {
	var worst *Order
	for _, o := range bs.parked {
		if worst == nil || o.ID > worst.ID {
			worst = o
		}
	}
	if worst != nil {
		return worst, true
	}
	item := bs.tree.Max()
	if item == nil {
		return nil, false
	}
	return item.(*bookItem).order, true
}

// IterateMatchable calls fn for each order, best first, while its price
// crosses limitLots for an incoming order of the opposite side. Expired
// orders are passed through; the caller decides what to do with them.
// fn returns false to stop.
func (bs *BookSide) IterateMatchable(limitLots int64, fn func(*Order) bool) {
	incoming := bs.Side.Opposite()
	bs.tree.Ascend(func(i btree.Item) bool {
		o := i.(*bookItem).order
		if !crosses(incoming, limitLots, o.PriceLots) {
			return false
		}
		return fn(o)
	})
}

// Ascend visits every priced order in priority order.
func (bs *BookSide) Ascend(fn func(*Order) bool) {
	bs.tree.Ascend(func(i btree.Item) bool {
		return fn(i.(*bookItem).order)
	})
}

// ReanchorPegged recomputes the price of every pegged order from the oracle
// price in lots. A nil price parks all pegged orders.
func (bs *BookSide) ReanchorPegged(oraclePriceLots *decimal.Decimal) {
	for _, o := range bs.orders {
		if !o.IsPegged() {
			continue
		}
		price := int64(0)
		if oraclePriceLots != nil {
			price = peggedPrice(bs.Side, *oraclePriceLots, o.Peg)
		}
		bs.reprice(o, price)
	}
}

func (bs *BookSide) reprice(o *Order, price int64) {
	if _, isParked := bs.parked[o.ID]; isParked {
		delete(bs.parked, o.ID)
	} else {
		if o.PriceLots == price {
			return
		}
		bs.tree.Delete(bs.key(o))
	}
	o.PriceLots = price
	if price < 1 {
		bs.parked[o.ID] = o
		return
	}
	item := bs.key(o)
	item.order = o
	bs.tree.ReplaceOrInsert(item)
}

// peggedPrice anchors bids on the floored oracle price and asks on the
// ceiled one, then applies the offset and the limit. A result below one lot
// means the order cannot trade.
func peggedPrice(side Side, oraclePriceLots decimal.Decimal, peg *PegParams) int64 {
	var base decimal.Decimal
	if side == SideBid {
		base = oraclePriceLots.Floor()
	} else {
		base = oraclePriceLots.Ceil()
	}
	priced := base.Add(decimal.NewFromInt(peg.OffsetLots))
	if !priced.IsPositive() || priced.GreaterThan(decimal.NewFromInt(maxPriceLots)) {
		return 0
	}
	price := priced.IntPart()
	if side == SideBid && peg.LimitLots > 0 && price > peg.LimitLots {
		price = peg.LimitLots
	}
	if side == SideAsk && price < peg.LimitLots {
		price = peg.LimitLots
	}
	return price
}

// Level is one aggregated price level of a side.
type Level struct {
	PriceLots int64
	Quantity  int64
	Orders    int
}

// Levels aggregates the first depth price levels; depth <= 0 returns all.
func (bs *BookSide) Levels(depth int) []Level {
	levels := make([]Level, 0)
	bs.tree.Ascend(func(i btree.Item) bool {
		o := i.(*bookItem).order
		n := len(levels)
		if n > 0 && levels[n-1].PriceLots == o.PriceLots {
			levels[n-1].Quantity += o.Quantity
			levels[n-1].Orders++
			return true
		}
		if depth > 0 && n == depth {
			return false
		}
		levels = append(levels, Level{PriceLots: o.PriceLots, Quantity: o.Quantity, Orders: 1})
		return true
	})
	return levels
}
