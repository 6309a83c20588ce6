package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"clob-engine/src/engine"
	"clob-engine/src/models"
)

func placeArgs(req models.PlaceOrderRequest) engine.PlaceOrderArgs {
	return engine.PlaceOrderArgs{
		Side:                      engine.Side(strings.ToUpper(req.Side)),
		PriceLots:                 req.PriceLots,
		MaxBaseLots:               req.MaxBaseLots,
		MaxQuoteLotsIncludingFees: req.MaxQuoteLotsIncludingFees,
		OrderType:                 engine.OrderType(strings.ToUpper(req.OrderType)),
		SelfTrade:                 engine.SelfTradeBehavior(strings.ToUpper(req.SelfTradeBehavior)),
		ClientOrderID:             req.ClientOrderID,
		ExpiryTimestamp:           req.ExpiryTimestamp,
		Limit:                     req.Limit,
	}
}

// PlaceOrder places a limit-style order for the caller's open-orders
// account. Supplying peg_offset_lots makes it a pegged order.
func (h *Handler) PlaceOrder(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var req models.PlaceOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	args := placeArgs(req)

	name := "place_order"
	if req.PegOffsetLots != nil {
		name = "place_order_pegged"
	}

	var out engine.PlacementOutcome
	err := h.run(name, func() error {
		var err error
		if req.PegOffsetLots != nil {
			peg := engine.PegParams{OffsetLots: *req.PegOffsetLots, LimitLots: req.PegLimitLots}
			out, err = h.Engine.PlaceOrderPegged(c.UserContext(), mid, own, args, peg)
		} else {
			out, err = h.Engine.PlaceOrder(c.UserContext(), mid, own, args)
		}
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, name, err)
	}
	if h.Metrics != nil {
		h.Metrics.ObservePlacement(out)
	}

	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Str("side", string(args.Side)).
		Str("type", req.OrderType).
		Uint64("order_id", out.OrderID).
		Int64("matched_base_lots", out.BaseLotsMatched).
		Int64("posted_base_lots", out.PostedBaseLots).
		Bool("dropped", out.Dropped).
		Msg("Order processed")

	status := fiber.StatusOK
	if out.Inserted {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(toPlacementResponse(out))
}

// PlaceTakeOrder matches immediately without an open-orders account and
// settles the caller's wallet in the same instruction.
func (h *Handler) PlaceTakeOrder(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var req models.PlaceTakeOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	referrer, ok := optionalUUID(req.Referrer)
	if !ok {
		return badRequest(c, "referrer must be a uuid")
	}
	args := engine.PlaceOrderArgs{
		Side:                      engine.Side(strings.ToUpper(req.Side)),
		PriceLots:                 req.PriceLots,
		MaxBaseLots:               req.MaxBaseLots,
		MaxQuoteLotsIncludingFees: req.MaxQuoteLotsIncludingFees,
		OrderType:                 engine.OrderType(strings.ToUpper(req.OrderType)),
		SelfTrade:                 engine.SelfTradeBehavior(strings.ToUpper(req.SelfTradeBehavior)),
		Limit:                     req.Limit,
	}

	var out engine.TakeOutcome
	err := h.run("place_take_order", func() error {
		var err error
		out, err = h.Engine.PlaceTakeOrder(c.UserContext(), mid, own, args, referrer)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "place_take_order", err)
	}
	if h.Metrics != nil {
		h.Metrics.ObservePlacement(out.PlacementOutcome)
	}

	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Str("side", string(args.Side)).
		Int64("matched_base_lots", out.BaseLotsMatched).
		Uint64("paid_base", out.PaidBase).
		Uint64("paid_quote", out.PaidQuote).
		Msg("Take order processed")

	return c.Status(fiber.StatusOK).JSON(models.TakeOrderResponse{
		PlacementResponse: toPlacementResponse(out.PlacementOutcome),
		PaidBase:          out.PaidBase,
		PaidQuote:         out.PaidQuote,
		RefundedBase:      out.RefundedBase,
		RefundedQuote:     out.RefundedQuote,
		ReferrerPaid:      out.ReferrerPaid,
	})
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	orderID, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		return badRequest(c, "order id must be an unsigned integer")
	}

	var found bool
	err = h.run("cancel_order", func() error {
		var err error
		_, found, err = h.Engine.CancelOrder(mid, own, orderID)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "cancel_order", err)
	}

	// edge case: an order that already left the book is not an error
	if !found {
		log.Info().
			Str("market_id", mid.String()).
			Uint64("order_id", orderID).
			Msg("Cancel order: order not resting")
		return c.Status(fiber.StatusOK).JSON(models.CancelResponse{
			OrderID: orderID,
			Status:  "NOT_FOUND",
		})
	}

	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Uint64("order_id", orderID).
		Msg("Order cancelled")
	return c.Status(fiber.StatusOK).JSON(models.CancelResponse{
		Canceled: 1,
		OrderID:  orderID,
		Status:   "CANCELLED",
	})
}

func (h *Handler) CancelOrderByClientOrderID(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	clientID, err := strconv.ParseUint(c.Params("client_id"), 10, 64)
	if err != nil {
		return badRequest(c, "client order id must be an unsigned integer")
	}

	var n int
	err = h.run("cancel_order_by_client_order_id", func() error {
		var err error
		n, err = h.Engine.CancelOrderByClientOrderID(mid, own, clientID)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "cancel_order_by_client_order_id", err)
	}
	return c.Status(fiber.StatusOK).JSON(cancelResponse(n))
}

// CancelAllOrders accepts optional side and limit query parameters.
func (h *Handler) CancelAllOrders(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var side *engine.Side
	if raw := c.Query("side"); raw != "" {
		s := engine.Side(strings.ToUpper(raw))
		if !s.Valid() {
			return badRequest(c, "side must be BID or ASK")
		}
		side = &s
	}
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return badRequest(c, "limit must not be negative")
	}

	var n int
	err := h.run("cancel_all_orders", func() error {
		var err error
		n, err = h.Engine.CancelAllOrders(mid, own, side, limit)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "cancel_all_orders", err)
	}
	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Int("canceled", n).
		Msg("Orders cancelled")
	return c.Status(fiber.StatusOK).JSON(cancelResponse(n))
}

func cancelResponse(n int) models.CancelResponse {
	if n == 0 {
		return models.CancelResponse{Status: "NOT_FOUND"}
	}
	return models.CancelResponse{Canceled: n, Status: "CANCELLED"}
}
