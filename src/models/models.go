package models

import "github.com/shopspring/decimal"

type CreateMarketRequest struct {
	Name               string          `json:"name"`
	BaseMint           string          `json:"base_mint"`
	QuoteMint          string          `json:"quote_mint"`
	BaseLotSize        int64           `json:"base_lot_size"`
	QuoteLotSize       int64           `json:"quote_lot_size"`
	MakerFee           decimal.Decimal `json:"maker_fee"`
	TakerFee           decimal.Decimal `json:"taker_fee"`
	FeeBasis           string          `json:"fee_basis,omitempty"` // RATE or ABSOLUTE
	ReferrerRebate     decimal.Decimal `json:"referrer_rebate"`
	CollectFeeAdmin    string          `json:"collect_fee_admin"`
	BookCapacity       int             `json:"book_capacity,omitempty"`
	EventQueueCapacity int             `json:"event_queue_capacity,omitempty"`
}

type MarketResponse struct {
	MarketID               string          `json:"market_id"`
	Name                   string          `json:"name"`
	BaseMint               string          `json:"base_mint"`
	QuoteMint              string          `json:"quote_mint"`
	BaseLotSize            int64           `json:"base_lot_size"`
	QuoteLotSize           int64           `json:"quote_lot_size"`
	MakerFee               decimal.Decimal `json:"maker_fee"`
	TakerFee               decimal.Decimal `json:"taker_fee"`
	FeeBasis               string          `json:"fee_basis"`
	ReferrerRebate         decimal.Decimal `json:"referrer_rebate"`
	CollectFeeAdmin        string          `json:"collect_fee_admin"`
	FeesAccrued            decimal.Decimal `json:"fees_accrued"`
	FeesSwept              decimal.Decimal `json:"fees_swept"`
	ReferrerRebatesAccrued decimal.Decimal `json:"referrer_rebates_accrued"`
	SeqNum                 uint64          `json:"seq_num"`
	Bids                   int             `json:"bids"`
	Asks                   int             `json:"asks"`
	EventQueueLength       int             `json:"event_queue_length"`
	EventQueueCapacity     int             `json:"event_queue_capacity"`
	Accounts               int             `json:"accounts"`
}

type DepositRequest struct {
	Base  uint64 `json:"base"`
	Quote uint64 `json:"quote"`
}

type PlaceOrderRequest struct {
	Side                      string `json:"side"` // BID or ASK
	PriceLots                 int64  `json:"price_lots"`
	MaxBaseLots               int64  `json:"max_base_lots"`
	MaxQuoteLotsIncludingFees int64  `json:"max_quote_lots_including_fees"`
	OrderType                 string `json:"order_type,omitempty"`
	SelfTradeBehavior         string `json:"self_trade_behavior,omitempty"`
	ClientOrderID             uint64 `json:"client_order_id,omitempty"`
	ExpiryTimestamp           int64  `json:"expiry_timestamp,omitempty"` // unix seconds, 0 = none
	Limit                     int    `json:"limit,omitempty"`
	// Peg fields turn the request into a pegged order.
	PegOffsetLots *int64 `json:"peg_offset_lots,omitempty"`
	PegLimitLots  int64  `json:"peg_limit_lots,omitempty"`
}

type PlaceTakeOrderRequest struct {
	Side                      string  `json:"side"`
	PriceLots                 int64   `json:"price_lots"`
	MaxBaseLots               int64   `json:"max_base_lots"`
	MaxQuoteLotsIncludingFees int64   `json:"max_quote_lots_including_fees"`
	OrderType                 string  `json:"order_type,omitempty"`
	SelfTradeBehavior         string  `json:"self_trade_behavior,omitempty"`
	Limit                     int     `json:"limit,omitempty"`
	Referrer                  *string `json:"referrer,omitempty"`
}

type PlacementResponse struct {
	OrderID            uint64          `json:"order_id,omitempty"`
	PriceLots          int64           `json:"price_lots"`
	BaseLotsMatched    int64           `json:"base_lots_matched"`
	QuoteLotsMatched   int64           `json:"quote_lots_matched"`
	QuoteNativeMatched decimal.Decimal `json:"quote_native_matched"`
	TakerFees          decimal.Decimal `json:"taker_fees"`
	MakerFees          decimal.Decimal `json:"maker_fees"`
	ReferrerRebate     decimal.Decimal `json:"referrer_rebate"`
	Fills              int             `json:"fills"`
	PostedBaseLots     int64           `json:"posted_base_lots"`
	Inserted           bool            `json:"inserted"`
	Discarded          bool            `json:"discarded,omitempty"`
	Dropped            bool            `json:"dropped,omitempty"`
	EvictedOrderID     uint64          `json:"evicted_order_id,omitempty"`
	ExpiredRemoved     int             `json:"expired_removed,omitempty"`
	SelfTradeLots      int64           `json:"self_trade_lots,omitempty"`
	DepositBase        decimal.Decimal `json:"deposit_base"`
	DepositQuote       decimal.Decimal `json:"deposit_quote"`
	EventsEvicted      int             `json:"events_evicted,omitempty"`
}

type TakeOrderResponse struct {
	PlacementResponse
	PaidBase      uint64 `json:"paid_base"`
	PaidQuote     uint64 `json:"paid_quote"`
	RefundedBase  uint64 `json:"refunded_base"`
	RefundedQuote uint64 `json:"refunded_quote"`
	ReferrerPaid  uint64 `json:"referrer_paid"`
}

type CancelResponse struct {
	Canceled int    `json:"canceled"`
	OrderID  uint64 `json:"order_id,omitempty"`
	Status   string `json:"status"` // CANCELLED or NOT_FOUND
}

type ConsumeEventsRequest struct {
	Accounts []string `json:"accounts"`
	Limit    int      `json:"limit"`
}

type ConsumeGivenEventsRequest struct {
	Accounts []string `json:"accounts"`
	Seqs     []uint64 `json:"seqs"`
}

type EventInfo struct {
	Seq          uint64          `json:"seq"`
	Kind         string          `json:"kind"`
	Owner        string          `json:"owner"`
	Side         string          `json:"side"`
	OrderID      uint64          `json:"order_id"`
	Quantity     int64           `json:"quantity"`
	OrderRemoved bool            `json:"order_removed"`
	Taker        string          `json:"taker,omitempty"`
	PriceLots    int64           `json:"price_lots,omitempty"`
	MakerFee     decimal.Decimal `json:"maker_fee"`
	TakerFee     decimal.Decimal `json:"taker_fee"`
	Reason       string          `json:"reason,omitempty"`
	Timestamp    int64           `json:"timestamp"`
}

type EventsResponse struct {
	Length   int         `json:"length"`
	Capacity int         `json:"capacity"`
	HeadSeq  uint64      `json:"head_seq,omitempty"`
	Events   []EventInfo `json:"events"`
}

type ConsumeResponse struct {
	Applied []EventInfo `json:"applied"`
	Missing []uint64    `json:"missing,omitempty"`
	Skipped []uint64    `json:"skipped,omitempty"`
	Pending int         `json:"pending"`
}

type ReconcileResponse struct {
	Applied int `json:"applied"`
}

type SettleFundsRequest struct {
	Referrer *string `json:"referrer,omitempty"`
}

type TransferResponse struct {
	Owner          string `json:"owner"`
	Base           uint64 `json:"base"`
	Quote          uint64 `json:"quote"`
	Referrer       string `json:"referrer,omitempty"`
	ReferrerRebate uint64 `json:"referrer_rebate"`
}

type PositionInfo struct {
	BidsBaseLots             int64           `json:"bids_base_lots"`
	BidsQuoteLots            int64           `json:"bids_quote_lots"`
	AsksBaseLots             int64           `json:"asks_base_lots"`
	BasePositionLots         int64           `json:"base_position_lots"`
	QuotePositionNative      decimal.Decimal `json:"quote_position_native"`
	TakerBaseLots            int64           `json:"taker_base_lots"`
	TakerQuoteLots           int64           `json:"taker_quote_lots"`
	BaseFreeNative           decimal.Decimal `json:"base_free_native"`
	QuoteFreeNative          decimal.Decimal `json:"quote_free_native"`
	ReferrerRebatesAvailable decimal.Decimal `json:"referrer_rebates_available"`
	MakerVolume              decimal.Decimal `json:"maker_volume"`
	TakerVolume              decimal.Decimal `json:"taker_volume"`
}

type OpenOrderInfo struct {
	OrderID         uint64 `json:"order_id"`
	ClientOrderID   uint64 `json:"client_order_id"`
	Side            string `json:"side"`
	LockedPriceLots int64  `json:"locked_price_lots"`
	Pegged          bool   `json:"pegged"`
}

type AccountResponse struct {
	Owner               string          `json:"owner"`
	MarketID            string          `json:"market_id"`
	Position            PositionInfo    `json:"position"`
	OpenOrders          []OpenOrderInfo `json:"open_orders"`
	NeedsReconciliation bool            `json:"needs_reconciliation"`
}

type OrderBookResponse struct {
	MarketID  string           `json:"market_id"`
	Timestamp int64            `json:"timestamp"` // unix timestamp in milliseconds
	Bids      []PriceLevelInfo `json:"bids"`      // best (highest) first
	Asks      []PriceLevelInfo `json:"asks"`      // best (lowest) first
}

type PriceLevelInfo struct {
	PriceLots int64           `json:"price_lots"`
	Price     decimal.Decimal `json:"price"`    // native quote per native base
	Quantity  int64           `json:"quantity"` // aggregated base lots at this price
	Orders    int             `json:"orders"`
}

type StubOracleSetRequest struct {
	Price decimal.Decimal `json:"price"`
}

type FaucetRequest struct {
	Owner  string `json:"owner"`
	Mint   string `json:"mint"`
	Amount uint64 `json:"amount"`
}

type BalanceResponse struct {
	Owner   string `json:"owner"`
	Mint    string `json:"mint"`
	Balance uint64 `json:"balance"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Markets       int    `json:"markets"`
}
