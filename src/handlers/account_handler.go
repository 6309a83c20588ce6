package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"clob-engine/src/engine"
	"clob-engine/src/models"
)

func (h *Handler) CreateAccount(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var resp models.AccountResponse
	err := h.run("create_open_orders_account", func() error {
		a, err := h.Engine.CreateOpenOrdersAccount(mid, own)
		if err != nil {
			return err
		}
		resp = toAccountResponse(a)
		return nil
	})
	if err != nil {
		return respondError(c, "create_open_orders_account", err)
	}
	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Msg("Open-orders account created")
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handler) GetAccount(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var resp models.AccountResponse
	var err error
	h.read(func() {
		var a *engine.OpenOrdersAccount
		if a, err = h.Engine.Account(mid, own); err == nil {
			resp = toAccountResponse(a)
		}
	})
	if err != nil {
		return respondError(c, "get_account", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

func (h *Handler) CloseAccount(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	err := h.run("close_open_orders_account", func() error {
		return h.Engine.CloseOpenOrdersAccount(mid, own)
	})
	if err != nil {
		return respondError(c, "close_open_orders_account", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handler) Deposit(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var req models.DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	var resp models.AccountResponse
	err := h.run("deposit", func() error {
		if err := h.Engine.Deposit(c.UserContext(), mid, own, req.Base, req.Quote); err != nil {
			return err
		}
		a, err := h.Engine.Account(mid, own)
		if err != nil {
			return err
		}
		resp = toAccountResponse(a)
		return nil
	})
	if err != nil {
		return respondError(c, "deposit", err)
	}
	return c.Status(fiber.StatusOK).JSON(resp)
}

// SettleFunds pays the caller's free balances back to their wallet.
func (h *Handler) SettleFunds(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var req models.SettleFundsRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return malformedJSON(c, err)
		}
	}
	referrer, ok := optionalUUID(req.Referrer)
	if !ok {
		return badRequest(c, "referrer must be a uuid")
	}

	var out engine.TransferRequest
	err := h.run("settle_funds", func() error {
		var err error
		out, err = h.Engine.SettleFunds(c.UserContext(), mid, own, referrer)
		return err
	})
	if err != nil {
		return respondError(c, "settle_funds", err)
	}
	log.Info().
		Str("market_id", mid.String()).
		Str("owner", own.String()).
		Uint64("base", out.Base).
		Uint64("quote", out.Quote).
		Uint64("referrer_rebate", out.ReferrerRebate).
		Msg("Funds settled")
	return c.Status(fiber.StatusOK).JSON(toTransferResponse(out))
}

// ConsumeEvents applies up to limit queued events belonging to the listed
// accounts. Anyone may crank the queue.
func (h *Handler) ConsumeEvents(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}
	var req models.ConsumeEventsRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	owners, ok := parseUUIDs(req.Accounts)
	if !ok {
		return badRequest(c, "accounts must be uuids")
	}

	var res engine.ConsumeResult
	err := h.run("consume_events", func() error {
		var err error
		res, err = h.Engine.ConsumeEvents(mid, owners, req.Limit)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "consume_events", err)
	}
	h.observeConsumed(res)
	return c.Status(fiber.StatusOK).JSON(toConsumeResponse(res))
}

func (h *Handler) ConsumeGivenEvents(c *fiber.Ctx) error {
	mid, ok := marketID(c)
	if !ok {
		return badRequest(c, "market id must be a uuid")
	}
	var req models.ConsumeGivenEventsRequest
	if err := c.BodyParser(&req); err != nil {
		return malformedJSON(c, err)
	}
	owners, ok := parseUUIDs(req.Accounts)
	if !ok {
		return badRequest(c, "accounts must be uuids")
	}
	if len(req.Seqs) == 0 {
		return badRequest(c, "seqs must not be empty")
	}

	var res engine.ConsumeResult
	err := h.run("consume_given_events", func() error {
		var err error
		res, err = h.Engine.ConsumeGivenEvents(mid, owners, req.Seqs)
		if err == nil {
			h.observeMarket(mid)
		}
		return err
	})
	if err != nil {
		return respondError(c, "consume_given_events", err)
	}
	h.observeConsumed(res)
	return c.Status(fiber.StatusOK).JSON(toConsumeResponse(res))
}

// Reconcile replays the caller's events that were evicted from a full queue.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	mid, own, problem := marketAndOwner(c)
	if problem != "" {
		return badRequest(c, problem)
	}
	var n int
	err := h.run("reconcile", func() error {
		var err error
		n, err = h.Engine.Reconcile(mid, own)
		return err
	})
	if err != nil {
		return respondError(c, "reconcile", err)
	}
	if h.Metrics != nil {
		h.Metrics.EventsConsumed.Add(float64(n))
	}
	return c.Status(fiber.StatusOK).JSON(models.ReconcileResponse{Applied: n})
}

func (h *Handler) observeConsumed(res engine.ConsumeResult) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.EventsConsumed.Add(float64(len(res.Applied)))
}
