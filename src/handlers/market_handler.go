package handlers

import (
	"os"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"clob-engine/src/engine"
	"clob-engine/src/models"
)

func (h *Handler) CreateMarket(c *fiber.Ctx) error {
	var req models.CreateMarketRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	admin, ok := parseUUID(req.CollectFeeAdmin)
	if !ok {
		return badRequest(c, "collect_fee_admin must be a uuid")
	}

	params := engine.MarketParams{
		Name:               req.Name,
		BaseMint:           req.BaseMint,
		QuoteMint:          req.QuoteMint,
		BaseLotSize:        req.BaseLotSize,
		QuoteLotSize:       req.QuoteLotSize,
		MakerFee:           req.MakerFee,
		TakerFee:           req.TakerFee,
		FeeBasis:           engine.FeeBasis(req.FeeBasis),
		ReferrerRebate:     req.ReferrerRebate,
		CollectFeeAdmin:    admin,
		BookCapacity:       req.BookCapacity,
		EventQueueCapacity: req.EventQueueCapacity,
	}
	if params.BookCapacity == 0 {
		params.BookCapacity = h.BookCapacity
	}
	if params.EventQueueCapacity == 0 {
		params.EventQueueCapacity = h.EventQueueCapacity
	}

	var resp models.MarketResponse
	err := h.run("create_market", func() error {
		m, err := h.Engine.CreateMarket(params)
		if err != nil {
			return err
		}
		resp = toMarketResponse(m)
		return nil
	})
	if err != nil {
		return respondError(c, "create_market", err)
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) GetMarket(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}
	var resp models.MarketResponse
	var err error
	h.read(func() {
		var m *engine.Market
		if m, err = h.Engine.Market(mid); err == nil {
			resp = toMarketResponse(m)
		}
	})
	if err != nil {
		return respondError(c, "get_market", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *Handler) ListMarkets(c *fiber.Ctx) error {
	var resp []models.MarketResponse
	h.read(func() {
		markets := h.Engine.Markets()
		resp = make([]models.MarketResponse, 0, len(markets))
		for _, m := range markets {
			resp = append(resp, toMarketResponse(m))
		}
	})
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *Handler) GetOrderBook(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}

	defaultDepth := 10
	if envDepth := os.Getenv("ORDERBOOK_DEFAULT_DEPTH"); envDepth != "" {
		if parsed, err := strconv.Atoi(envDepth); err == nil && parsed > 0 {
			defaultDepth = parsed
		}
	}
	maxDepth := 1000

	depth, err := strconv.Atoi(c.Query("depth", strconv.Itoa(defaultDepth)))
	if err != nil || depth <= 0 {
		depth = defaultDepth
	}
	// edge case: enforce maximum depth limit
	if depth > maxDepth {
		depth = maxDepth
	}

	var resp models.OrderBookResponse
	h.read(func() {
		var m *engine.Market
		if m, err = h.Engine.Market(mid); err != nil {
			return
		}
		snap := m.Snapshot(depth)
		resp = models.OrderBookResponse{
			MarketID:  mid.String(),
			Timestamp: time.Now().UnixMilli(),
			Bids:      toLevels(m.Lots, snap.Bids),
			Asks:      toLevels(m.Lots, snap.Asks),
		}
	})
	if err != nil {
		return respondError(c, "get_order_book", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// GetEvents lists the queued events of a market, oldest first, with the
// head the next consume pass starts from.
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}
	var resp models.EventsResponse
	var err error
	h.read(func() {
		var m *engine.Market
		if m, err = h.Engine.Market(mid); err != nil {
			return
		}
		resp.Length = m.Events.Len()
		resp.Capacity = m.Events.Cap()
		if head, ok := m.Events.PeekHead(); ok {
			resp.HeadSeq = head.Seq
		}
		events := m.Events.Events()
		resp.Events = make([]models.EventInfo, 0, len(events))
		for _, ev := range events {
			resp.Events = append(resp.Events, toEventInfo(ev))
		}
	})
	if err != nil {
		return respondError(c, "get_events", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// SweepFees pays accrued fees to the caller, who must be the fee admin.
func (h *Handler) SweepFees(c *fiber.Ctx) error {
	mid, caller, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var req engine.TransferRequest
	err := h.run("sweep_fees", func() error {
		var err error
		req, err = h.Engine.SweepFees(c.UserContext(), mid, caller)
		return err
	})
	if err != nil {
		return respondError(c, "sweep_fees", err)
	}
	if h.Metrics != nil {
		h.Metrics.FeesSwept.Add(float64(req.Quote))
	}
	return c.Status(fiber.StatusOK).JSON(toTransferResponse(req))
}

// StubOracleSet replaces the market's oracle price. Pegged orders follow it
// on the next placement.
func (h *Handler) StubOracleSet(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}
	var req models.StubOracleSetRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	err := h.run("stub_oracle_set", func() error {
		return h.Engine.StubOracleSet(mid, req.Price)
	})
	if err != nil {
		return respondError(c, "stub_oracle_set", err)
	}
	log.Info().
		Str("market_id", mid.String()).
		Str("price", req.Price.String()).
		Msg("Oracle price set")
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"market_id": mid.String(),
		"price":     req.Price,
	})
}

// Faucet mints wallet tokens. Only registered in dev mode.
func (h *Handler) Faucet(c *fiber.Ctx) error {
	var req models.FaucetRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	own, ok := parseUUID(req.Owner)
	if !ok {
		return badRequest(c, "owner must be a uuid")
	}
	if req.Mint == "" || req.Amount == 0 {
		return badRequest(c, "mint and a positive amount are required")
	}
	if err := h.Ledger.Mint(c.UserContext(), own, req.Mint, req.Amount); err != nil {
		return respondError(c, "faucet", err)
	}
	balance, err := h.Ledger.Balance(c.UserContext(), own, req.Mint)
	if err != nil {
		return respondError(c, "faucet", err)
	}
	log.Info().
		Str("owner", own.String()).
		Str("mint", req.Mint).
		Uint64("amount", req.Amount).
		Msg("Tokens minted")
	return c.Status(fiber.StatusOK).JSON(models.BalanceResponse{
		Owner:   own.String(),
		Mint:    req.Mint,
		Balance: balance,
	})
}

func (h *Handler) GetBalance(c *fiber.Ctx) error {
	own, ok := parseUUID(c.Params("owner"))
	if !ok {
		return badRequest(c, "owner must be a uuid")
	}
	mint := c.Params("mint")
	balance, err := h.Ledger.Balance(c.UserContext(), own, mint)
	if err != nil {
		return respondError(c, "get_balance", err)
	}
	return c.Status(fiber.StatusOK).JSON(models.BalanceResponse{
		Owner:   own.String(),
		Mint:    mint,
		Balance: balance,
	})
}

func (h *Handler) HealthCheck(c *fiber.Ctx) error {
	uptime := time.Since(h.StartTime).Seconds()
	var markets int
	h.read(func() { markets = len(h.Engine.Markets()) })
	return c.Status(fiber.StatusOK).JSON(models.HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(uptime),
		Markets:       markets,
	})
}
