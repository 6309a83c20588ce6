package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type EventKind string

const (
	EventFill EventKind = "FILL"
	EventOut  EventKind = "OUT"
)

type OutReason string

const (
	OutExpired   OutReason = "EXPIRED"
	OutSelfTrade OutReason = "SELF_TRADE"
	OutEvicted   OutReason = "EVICTED"
)

// Event is one deferred position delta. Owner is the maker of a fill or the
// owner of a removed order; Side is always the side of that resting order.
type Event struct {
	Kind      EventKind
	Seq       uint64
	Timestamp int64

	Owner           uuid.UUID
	Side            Side
	OrderID         uint64
	ClientOrderID   uint64
	LockedPriceLots int64
	Quantity        int64
	// OrderRemoved is set when the event took the order off the book.
	OrderRemoved bool

	// Fill only.
	Taker        uuid.UUID
	TakerPending bool
	PriceLots    int64
	QuoteLots    int64
	QuoteNative  decimal.Decimal
	MakerFee     decimal.Decimal
	TakerFee     decimal.Decimal

	// Out only.
	Reason OutReason
}

type eventNode struct {
	event Event
	prev  int
	next  int
	used  bool
}

// EventQueue is a bounded FIFO of events stored in a fixed slot array.
// Used slots form a doubly linked list in push order, so events can be
// consumed from the middle when their owner is supplied out of order.
// Pushing into a full queue evicts the oldest event.
type EventQueue struct {
	nodes []eventNode
	head  int
	tail  int
	free  int
	count int
	bySeq map[uint64]int
}

func NewEventQueue(capacity int) *EventQueue {
	q := &EventQueue{
		nodes: make([]eventNode, capacity),
		head:  -1,
		tail:  -1,
		bySeq: make(map[uint64]int, capacity),
	}
	for i := range q.nodes {
		q.nodes[i].next = i + 1
		q.nodes[i].prev = -1
	}
	if capacity > 0 {
		q.nodes[capacity-1].next = -1
		q.free = 0
	} else {
		q.free = -1
	}
	return q
}

func (q *EventQueue) Len() int { return q.count }
func (q *EventQueue) Cap() int { return len(q.nodes) }

func (q *EventQueue) IsFull() bool {
	return q.count == len(q.nodes)
}

// Push appends ev. When the queue is full the oldest event is removed first
// and returned so the caller can flag its owner.
func (q *EventQueue) Push(ev Event) (evicted *Event) {
	if q.IsFull() {
		old := q.remove(q.head)
		evicted = &old
	}
	slot := q.free
	q.free = q.nodes[slot].next

	q.nodes[slot] = eventNode{event: ev, prev: q.tail, next: -1, used: true}
	if q.tail >= 0 {
		q.nodes[q.tail].next = slot
	} else {
		q.head = slot
	}
	q.tail = slot
	q.bySeq[ev.Seq] = slot
	q.count++
	return evicted
}

func (q *EventQueue) PeekHead() (Event, bool) {
	if q.head < 0 {
		return Event{}, false
	}
	return q.nodes[q.head].event, true
}

func (q *EventQueue) Get(seq uint64) (Event, bool) {
	slot, ok := q.bySeq[seq]
	if !ok {
		return Event{}, false
	}
	return q.nodes[slot].event, true
}

// Remove takes the event with the given sequence number out of the queue.
func (q *EventQueue) Remove(seq uint64) (Event, bool) {
	slot, ok := q.bySeq[seq]
	if !ok {
		return Event{}, false
	}
	return q.remove(slot), true
}

// DrainFor removes and returns, oldest first, up to limit events whose
// owner satisfies include. Other events keep their place in the queue.
func (q *EventQueue) DrainFor(include func(uuid.UUID) bool, limit int) []Event {
	var out []Event
	for slot := q.head; slot >= 0 && (limit <= 0 || len(out) < limit); {
		next := q.nodes[slot].next
		if include(q.nodes[slot].event.Owner) {
			out = append(out, q.remove(slot))
		}
		slot = next
	}
	return out
}

// Events returns a copy of the queued events, oldest first.
func (q *EventQueue) Events() []Event {
	out := make([]Event, 0, q.count)
	for slot := q.head; slot >= 0; slot = q.nodes[slot].next {
		out = append(out, q.nodes[slot].event)
	}
	return out
}

func (q *EventQueue) remove(slot int) Event {
	n := q.nodes[slot]
	if n.prev >= 0 {
		q.nodes[n.prev].next = n.next
	} else {
		q.head = n.next
	}
	if n.next >= 0 {
		q.nodes[n.next].prev = n.prev
	} else {
		q.tail = n.prev
	}
	delete(q.bySeq, n.event.Seq)
	q.nodes[slot] = eventNode{next: q.free, prev: -1}
	q.free = slot
	q.count--
	return n.event
}
