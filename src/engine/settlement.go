package engine

import (
	"github.com/google/uuid"
)

// ConsumeResult reports one event-consumption pass.
type ConsumeResult struct {
	Applied []Event
	// Missing lists requested sequence numbers that are not queued.
	Missing []uint64
	// Skipped lists requested events whose owner was not supplied.
	Skipped []uint64
	Pending int
}

// applyEvent commits the deferred half of an event. The maker (or owner of
// the removed order) takes the reservation and fee deltas; for fills the
// taker's pending counters move into its net position.
func (m *Market) applyEvent(ev Event) error {
	acct, ok := m.accounts[ev.Owner]
	if !ok {
		return ErrAccountNotFound.withMsg("event %d owner %s", ev.Seq, ev.Owner)
	}
	if ev.Kind == EventOut {
		return acct.applyOut(m, ev)
	}
	maker, err := acct.Position.makerFill(m, ev)
	if err != nil {
		return err
	}
	var taker *OpenOrdersAccount
	var takerPos Position
	if ev.TakerPending {
		if t, ok := m.accounts[ev.Taker]; ok {
			if takerPos, err = t.Position.takerFill(ev); err != nil {
				return err
			}
			taker = t
		}
	}

	acct.Position = maker
	if ev.OrderRemoved {
		acct.removeOpenOrder(ev.OrderID)
	}
	if taker != nil {
		taker.Position = takerPos
	}
	return nil
}

func (m *Market) accountSet(owners []uuid.UUID) map[uuid.UUID]struct{} {
	set := make(map[uuid.UUID]struct{}, len(owners))
	for _, o := range owners {
		if _, ok := m.accounts[o]; ok {
			set[o] = struct{}{}
		}
	}
	return set
}

// consumeEvents applies, in queue order, up to limit events owned by the
// supplied accounts. Events of other accounts stay queued.
func (m *Market) consumeEvents(owners []uuid.UUID, limit int) (ConsumeResult, error) {
	set := m.accountSet(owners)
	drained := m.Events.DrainFor(func(owner uuid.UUID) bool {
		_, ok := set[owner]
		return ok
	}, limit)

	res := ConsumeResult{Applied: make([]Event, 0, len(drained))}
	for i, ev := range drained {
		if err := m.applyEvent(ev); err != nil {
			// edge case: drained events that were not applied go to reconciliation
			for _, rest := range drained[i:] {
				m.orphan(rest)
			}
			return res, err
		}
		res.Applied = append(res.Applied, ev)
	}
	res.Pending = m.Events.Len()
	return res, nil
}

// consumeGivenEvents applies exactly the listed events, in queue order,
// when their owner is among the supplied accounts.
func (m *Market) consumeGivenEvents(owners []uuid.UUID, seqs []uint64) (ConsumeResult, error) {
	set := m.accountSet(owners)
	wanted := make(map[uint64]struct{}, len(seqs))
	res := ConsumeResult{}
	for _, seq := range seqs {
		ev, ok := m.Events.Get(seq)
		if !ok {
			res.Missing = append(res.Missing, seq)
			continue
		}
		if _, ok := set[ev.Owner]; !ok {
			res.Skipped = append(res.Skipped, seq)
			continue
		}
		wanted[seq] = struct{}{}
	}

	for _, ev := range m.Events.Events() {
		if _, ok := wanted[ev.Seq]; !ok {
			continue
		}
		m.Events.Remove(ev.Seq)
		if err := m.applyEvent(ev); err != nil {
			return res, err
		}
		res.Applied = append(res.Applied, ev)
	}
	res.Pending = m.Events.Len()
	return res, nil
}

// reconcile replays the events evicted from the queue for owner.
func (m *Market) reconcile(owner uuid.UUID) (int, error) {
	acct, ok := m.accounts[owner]
	if !ok {
		return 0, ErrAccountNotFound.withMsg("owner %s", owner)
	}
	events := m.orphaned[owner]
	for i, ev := range events {
		if err := m.applyEvent(ev); err != nil {
			m.orphaned[owner] = events[i:]
			return i, err
		}
	}
	delete(m.orphaned, owner)
	acct.NeedsReconciliation = false
	return len(events), nil
}

// TransferRequest lists the native amounts a settlement moves out of the
// market vaults.
type TransferRequest struct {
	Owner    uuid.UUID
	Base     uint64
	Quote    uint64
	Referrer *uuid.UUID
	// ReferrerRebate goes to Referrer, or back to the fee pool when there is
	// no referrer.
	ReferrerRebate uint64
}

func (r TransferRequest) IsZero() bool {
	return r.Base == 0 && r.Quote == 0 && r.ReferrerRebate == 0
}

// planSettle computes what settling acct would move. Only whole native
// units leave; fractional dust stays in the free balances.
func planSettle(acct *OpenOrdersAccount, referrer *uuid.UUID) (TransferRequest, error) {
	base, err := ToNativeUnits(acct.Position.BaseFreeNative)
	if err != nil {
		return TransferRequest{}, err
	}
	quote, err := ToNativeUnits(acct.Position.QuoteFreeNative)
	if err != nil {
		return TransferRequest{}, err
	}
	rebate, err := ToNativeUnits(acct.Position.ReferrerRebatesAvailable)
	if err != nil {
		return TransferRequest{}, err
	}
	return TransferRequest{
		Owner:          acct.Owner,
		Base:           base,
		Quote:          quote,
		Referrer:       referrer,
		ReferrerRebate: rebate,
	}, nil
}

func (m *Market) commitSettle(acct *OpenOrdersAccount, req TransferRequest) {
	p := &acct.Position
	p.BaseFreeNative = p.BaseFreeNative.Sub(NativeDecimal(req.Base))
	p.QuoteFreeNative = p.QuoteFreeNative.Sub(NativeDecimal(req.Quote))

	rebate := NativeDecimal(req.ReferrerRebate)
	p.ReferrerRebatesAvailable = p.ReferrerRebatesAvailable.Sub(rebate)
	m.ReferrerRebatesAccrued = m.ReferrerRebatesAccrued.Sub(rebate)
	if req.Referrer == nil {
		m.FeesAccrued = m.FeesAccrued.Add(rebate)
	}
}

func (m *Market) planSweep() (uint64, error) {
	if m.FeesAccrued.IsNegative() {
		return 0, ErrArithmeticOverflow.withMsg("fee pool is negative: %s", m.FeesAccrued)
	}
	return ToNativeUnits(m.FeesAccrued)
}

func (m *Market) commitSweep(amount uint64) {
	swept := NativeDecimal(amount)
	m.FeesAccrued = m.FeesAccrued.Sub(swept)
	m.FeesSwept = m.FeesSwept.Add(swept)
}

// cancelResting removes one of acct's orders from the book and returns its
// reservation at once. It reports false when the order is not resting.
func (m *Market) cancelResting(acct *OpenOrdersAccount, oo OpenOrder) (*Order, bool, error) {
	book := m.side(oo.Side)
	o, ok := book.Get(oo.ID)
	if !ok || o.Owner != acct.Owner {
		return nil, false, nil
	}
	if err := acct.releaseReservation(m, o.Side, o.LockedPriceLots, o.Quantity); err != nil {
		return nil, false, err
	}
	book.Remove(o.ID)
	acct.removeOpenOrder(o.ID)
	return o, true, nil
}
