package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Transfer moves Amount native units of Mint from one owner to another.
// Market vaults are owned by the market id.
type Transfer struct {
	Mint   string
	From   uuid.UUID
	To     uuid.UUID
	Amount uint64
}

// TokenLedger executes token transfers. A batch is applied atomically and
// fails with an error matching ErrInsufficientFunds when a sender is short.
type TokenLedger interface {
	Transfer(ctx context.Context, transfers ...Transfer) error
}

type Option func(*Engine)

func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

func WithOracle(o Oracle) Option {
	return func(e *Engine) { e.oracle = o }
}

// WithClock sets the source of the unix timestamp used for expiry.
func WithClock(now func() int64) Option {
	return func(e *Engine) { e.clock = now }
}

// Engine exposes the market instructions. Each call runs to completion
// against one market; the engine holds no locks, so concurrent callers must
// serialize their instructions.
type Engine struct {
	markets map[uuid.UUID]*Market
	ledger  TokenLedger
	oracle  Oracle
	clock   func() int64
	log     zerolog.Logger
}

func New(ledger TokenLedger, opts ...Option) *Engine {
	e := &Engine{
		markets: make(map[uuid.UUID]*Market),
		ledger:  ledger,
		oracle:  NewStubOracle(),
		clock:   func() int64 { return time.Now().Unix() },
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) CreateMarket(params MarketParams) (*Market, error) {
	m, err := NewMarket(uuid.New(), params)
	if err != nil {
		return nil, err
	}
	e.markets[m.ID] = m
	e.log.Info().
		Str("market_id", m.ID.String()).
		Str("name", m.Params.Name).
		Int64("base_lot_size", m.Params.BaseLotSize).
		Int64("quote_lot_size", m.Params.QuoteLotSize).
		Str("maker_fee", m.Params.MakerFee.String()).
		Str("taker_fee", m.Params.TakerFee.String()).
		Msg("Market created")
	return m, nil
}

func (e *Engine) Market(id uuid.UUID) (*Market, error) {
	m, ok := e.markets[id]
	if !ok {
		return nil, ErrMarketNotFound.withMsg("market %s", id)
	}
	return m, nil
}

func (e *Engine) Markets() []*Market {
	out := make([]*Market, 0, len(e.markets))
	for _, m := range e.markets {
		out = append(out, m)
	}
	return out
}

func (e *Engine) account(marketID, owner uuid.UUID) (*Market, *OpenOrdersAccount, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, nil, err
	}
	a, ok := m.accounts[owner]
	if !ok {
		return nil, nil, ErrAccountNotFound.withMsg("owner %s on market %s", owner, marketID)
	}
	return m, a, nil
}

func (e *Engine) Account(marketID, owner uuid.UUID) (*OpenOrdersAccount, error) {
	_, a, err := e.account(marketID, owner)
	return a, err
}

func (e *Engine) CreateOpenOrdersAccount(marketID, owner uuid.UUID) (*OpenOrdersAccount, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return nil, err
	}
	if owner == uuid.Nil {
		return nil, ErrInvalidArgument.withMsg("owner is required")
	}
	return m.openAccount(owner)
}

// CloseOpenOrdersAccount removes an account that has nothing left on the
// market.
func (e *Engine) CloseOpenOrdersAccount(marketID, owner uuid.UUID) error {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return err
	}
	if !a.Position.IsEmpty() || len(a.OpenOrders) > 0 || len(m.orphaned[owner]) > 0 {
		return ErrAccountNotEmpty.withMsg("owner %s still has balances or orders", owner)
	}
	delete(m.accounts, owner)
	return nil
}

// Deposit pulls tokens from the owner's wallet into the market vaults and
// credits the account's free balances.
func (e *Engine) Deposit(ctx context.Context, marketID, owner uuid.UUID, base, quote uint64) error {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return err
	}
	transfers := make([]Transfer, 0, 2)
	if base > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.BaseMint, From: owner, To: m.ID, Amount: base})
	}
	if quote > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.QuoteMint, From: owner, To: m.ID, Amount: quote})
	}
	if len(transfers) == 0 {
		return ErrInvalidQuantity.withMsg("deposit amount must be positive")
	}
	if err := e.transfer(ctx, transfers); err != nil {
		return err
	}
	a.Position.BaseFreeNative = a.Position.BaseFreeNative.Add(NativeDecimal(base))
	a.Position.QuoteFreeNative = a.Position.QuoteFreeNative.Add(NativeDecimal(quote))
	return nil
}

func (e *Engine) oraclePrice(marketID uuid.UUID) *decimal.Decimal {
	if e.oracle == nil {
		return nil
	}
	p, ok := e.oracle.Price(marketID)
	if !ok {
		return nil
	}
	return &p
}

// PlaceOrder matches an order for an account and rests any remainder the
// order type allows.
func (e *Engine) PlaceOrder(ctx context.Context, marketID, owner uuid.UUID, args PlaceOrderArgs) (PlacementOutcome, error) {
	args.Peg = nil
	return e.place(ctx, marketID, owner, args)
}

// PlaceOrderPegged places an order whose price follows the oracle. It
// fails when the market has no oracle price.
func (e *Engine) PlaceOrderPegged(ctx context.Context, marketID, owner uuid.UUID, args PlaceOrderArgs, peg PegParams) (PlacementOutcome, error) {
	args.Peg = &peg
	return e.place(ctx, marketID, owner, args)
}

func (e *Engine) place(ctx context.Context, marketID, owner uuid.UUID, args PlaceOrderArgs) (PlacementOutcome, error) {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return PlacementOutcome{}, err
	}
	plan, err := m.planPlacement(owner, a, args, e.clock(), e.oraclePrice(marketID))
	if err != nil {
		return PlacementOutcome{}, err
	}

	depositBase, depositQuote := plan.shortfall()
	transfers, err := m.depositTransfers(owner, depositBase, depositQuote)
	if err != nil {
		return PlacementOutcome{}, err
	}
	if err := e.transfer(ctx, transfers); err != nil {
		return PlacementOutcome{}, err
	}

	out := m.commitPlacement(plan, depositBase, depositQuote)
	e.logPlacement(m, owner, plan.args, out)
	return out, nil
}

// TakeOutcome is a PlacementOutcome plus the amounts paid out in the same
// instruction.
type TakeOutcome struct {
	PlacementOutcome
	PaidBase       uint64
	PaidQuote      uint64
	ReferrerPaid   uint64
	RefundedQuote  uint64
	RefundedBase   uint64
	ReferrerTarget *uuid.UUID
}

// PlaceTakeOrder matches without resting and without an open-orders
// account. Payment, proceeds and the referrer share move in one transfer
// batch.
func (e *Engine) PlaceTakeOrder(ctx context.Context, marketID, owner uuid.UUID, args PlaceOrderArgs, referrer *uuid.UUID) (TakeOutcome, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return TakeOutcome{}, err
	}
	switch args.OrderType {
	case TypeImmediateOrCancel, TypeFillOrKill, TypeMarket:
	case "":
		args.OrderType = TypeImmediateOrCancel
	default:
		return TakeOutcome{}, ErrInvalidArgument.withMsg("take orders cannot be %s", args.OrderType)
	}
	args.Peg = nil

	plan, err := m.planPlacement(owner, nil, args, e.clock(), e.oraclePrice(marketID))
	if err != nil {
		return TakeOutcome{}, err
	}
	plan.payReferrer = referrer != nil

	depositBase, depositQuote := plan.shortfall()
	transfers, err := m.depositTransfers(owner, depositBase, depositQuote)
	if err != nil {
		return TakeOutcome{}, err
	}

	res := TakeOutcome{ReferrerTarget: referrer}
	if res.PaidBase, err = ToNativeUnits(plan.creditBase); err != nil {
		return TakeOutcome{}, err
	}
	if res.PaidQuote, err = ToNativeUnits(plan.creditQuote); err != nil {
		return TakeOutcome{}, err
	}
	if res.RefundedBase, err = ToNativeUnits(depositBase.Sub(plan.needBase)); err != nil {
		return TakeOutcome{}, err
	}
	if res.RefundedQuote, err = ToNativeUnits(depositQuote.Sub(plan.needQuote)); err != nil {
		return TakeOutcome{}, err
	}
	if referrer != nil {
		if res.ReferrerPaid, err = ToNativeUnits(plan.referrer); err != nil {
			return TakeOutcome{}, err
		}
	}
	transfers = append(transfers, m.payoutTransfers(owner, res.PaidBase+res.RefundedBase, res.PaidQuote+res.RefundedQuote)...)
	if res.ReferrerPaid > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.QuoteMint, From: m.ID, To: *referrer, Amount: res.ReferrerPaid})
	}
	if err := e.transfer(ctx, transfers); err != nil {
		return TakeOutcome{}, err
	}

	res.PlacementOutcome = m.commitPlacement(plan, depositBase, depositQuote)
	e.logPlacement(m, owner, plan.args, res.PlacementOutcome)
	return res, nil
}

func (m *Market) depositTransfers(owner uuid.UUID, base, quote decimal.Decimal) ([]Transfer, error) {
	baseUnits, err := ToNativeUnits(base)
	if err != nil {
		return nil, err
	}
	quoteUnits, err := ToNativeUnits(quote)
	if err != nil {
		return nil, err
	}
	var transfers []Transfer
	if baseUnits > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.BaseMint, From: owner, To: m.ID, Amount: baseUnits})
	}
	if quoteUnits > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.QuoteMint, From: owner, To: m.ID, Amount: quoteUnits})
	}
	return transfers, nil
}

func (m *Market) payoutTransfers(owner uuid.UUID, base, quote uint64) []Transfer {
	var transfers []Transfer
	if base > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.BaseMint, From: m.ID, To: owner, Amount: base})
	}
	if quote > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.QuoteMint, From: m.ID, To: owner, Amount: quote})
	}
	return transfers
}

func (e *Engine) logPlacement(m *Market, owner uuid.UUID, args PlaceOrderArgs, out PlacementOutcome) {
	e.log.Debug().
		Str("market_id", m.ID.String()).
		Str("owner", owner.String()).
		Str("side", string(args.Side)).
		Str("type", string(args.OrderType)).
		Int64("price_lots", out.PriceLots).
		Int64("matched_base_lots", out.BaseLotsMatched).
		Int64("posted_base_lots", out.PostedBaseLots).
		Int("fills", out.Fills).
		Str("taker_fees", out.TakerFees.String()).
		Msg("Order placed")
	if out.EventsEvicted > 0 {
		e.log.Warn().
			Str("market_id", m.ID.String()).
			Int("evicted", out.EventsEvicted).
			Msg("Event queue full, oldest events parked for reconciliation")
	}
}

// CancelOrder removes one resting order of owner. A missing order is not an
// error: found is false and nothing changes.
func (e *Engine) CancelOrder(marketID, owner uuid.UUID, orderID uint64) (canceled *Order, found bool, err error) {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return nil, false, err
	}
	oo, ok := a.FindOpenOrder(orderID)
	if !ok {
		return nil, false, nil
	}
	return m.cancelResting(a, oo)
}

// CancelOrderByClientOrderID cancels every resting order of owner carrying
// clientOrderID and returns how many were removed.
func (e *Engine) CancelOrderByClientOrderID(marketID, owner uuid.UUID, clientOrderID uint64) (int, error) {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return 0, err
	}
	var matches []OpenOrder
	for _, oo := range a.OpenOrders {
		if oo.ClientOrderID == clientOrderID {
			matches = append(matches, oo)
		}
	}
	return cancelEach(m, a, matches, 0)
}

// CancelAllOrders cancels up to limit resting orders of owner, oldest
// first, optionally restricted to one side. limit <= 0 cancels all.
func (e *Engine) CancelAllOrders(marketID, owner uuid.UUID, side *Side, limit int) (int, error) {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return 0, err
	}
	var matches []OpenOrder
	for _, oo := range a.OpenOrders {
		if side == nil || oo.Side == *side {
			matches = append(matches, oo)
		}
	}
	return cancelEach(m, a, matches, limit)
}

func cancelEach(m *Market, a *OpenOrdersAccount, orders []OpenOrder, limit int) (int, error) {
	n := 0
	for _, oo := range orders {
		if limit > 0 && n >= limit {
			break
		}
		_, found, err := m.cancelResting(a, oo)
		if err != nil {
			return n, err
		}
		if found {
			n++
		}
	}
	return n, nil
}

func (e *Engine) ConsumeEvents(marketID uuid.UUID, owners []uuid.UUID, limit int) (ConsumeResult, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return ConsumeResult{}, err
	}
	return m.consumeEvents(owners, limit)
}

func (e *Engine) ConsumeGivenEvents(marketID uuid.UUID, owners []uuid.UUID, seqs []uint64) (ConsumeResult, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return ConsumeResult{}, err
	}
	return m.consumeGivenEvents(owners, seqs)
}

// Reconcile applies the events that were evicted from a full queue before
// owner's account consumed them.
func (e *Engine) Reconcile(marketID, owner uuid.UUID) (int, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return 0, err
	}
	n, err := m.reconcile(owner)
	if err == nil && n > 0 {
		e.log.Info().
			Str("market_id", marketID.String()).
			Str("owner", owner.String()).
			Int("events", n).
			Msg("Account reconciled")
	}
	return n, err
}

// SettleFunds pays an account's whole free balances out of the vaults. The
// account's referrer rebates go to referrer, or to the protocol when nil.
func (e *Engine) SettleFunds(ctx context.Context, marketID, owner uuid.UUID, referrer *uuid.UUID) (TransferRequest, error) {
	m, a, err := e.account(marketID, owner)
	if err != nil {
		return TransferRequest{}, err
	}
	req, err := planSettle(a, referrer)
	if err != nil {
		return TransferRequest{}, err
	}
	if req.IsZero() {
		return req, nil
	}
	transfers := m.payoutTransfers(owner, req.Base, req.Quote)
	if referrer != nil && req.ReferrerRebate > 0 {
		transfers = append(transfers, Transfer{Mint: m.Params.QuoteMint, From: m.ID, To: *referrer, Amount: req.ReferrerRebate})
	}
	if err := e.transfer(ctx, transfers); err != nil {
		return TransferRequest{}, err
	}
	m.commitSettle(a, req)
	return req, nil
}

// SweepFees pays the accrued protocol fees to the market's fee admin.
func (e *Engine) SweepFees(ctx context.Context, marketID, caller uuid.UUID) (TransferRequest, error) {
	m, err := e.Market(marketID)
	if err != nil {
		return TransferRequest{}, err
	}
	if caller != m.Params.CollectFeeAdmin {
		return TransferRequest{}, ErrUnauthorized.withMsg("%s is not the fee admin of market %s", caller, marketID)
	}
	amount, err := m.planSweep()
	if err != nil {
		return TransferRequest{}, err
	}
	req := TransferRequest{Owner: caller, Quote: amount}
	if amount == 0 {
		return req, nil
	}
	if err := e.transfer(ctx, m.payoutTransfers(caller, 0, amount)); err != nil {
		return TransferRequest{}, err
	}
	m.commitSweep(amount)
	e.log.Info().
		Str("market_id", marketID.String()).
		Uint64("amount", amount).
		Msg("Fees swept")
	return req, nil
}

// StubOracleSet sets the market's price on a StubOracle.
func (e *Engine) StubOracleSet(marketID uuid.UUID, price decimal.Decimal) error {
	if _, err := e.Market(marketID); err != nil {
		return err
	}
	stub, ok := e.oracle.(*StubOracle)
	if !ok {
		return ErrUnauthorized.withMsg("oracle is not settable")
	}
	stub.Set(marketID, price)
	return nil
}

func (e *Engine) transfer(ctx context.Context, transfers []Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	if e.ledger == nil {
		return ErrInsufficientFunds.withMsg("no token ledger configured")
	}
	if err := e.ledger.Transfer(ctx, transfers...); err != nil {
		var engErr *Error
		if errors.As(err, &engErr) {
			return err
		}
		return fmt.Errorf("token transfer: %w", err)
	}
	return nil
}
