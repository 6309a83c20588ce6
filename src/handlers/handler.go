package handlers

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"clob-engine/src/engine"
	"clob-engine/src/ledger"
	"clob-engine/src/metrics"
	"clob-engine/src/models"
)

// OwnerHeader carries the caller's identity on every instruction.
const OwnerHeader = "X-Owner"

// Handler dispatches HTTP requests onto the engine. The engine is not safe
// for concurrent use, so every instruction runs under mu.
type Handler struct {
	Engine    *engine.Engine
	Ledger    ledger.Ledger
	Metrics   *metrics.Metrics
	StartTime time.Time

	// Defaults applied to markets created without explicit capacities.
	BookCapacity       int
	EventQueueCapacity int

	mu sync.Mutex
}

func NewHandler(eng *engine.Engine, l ledger.Ledger, m *metrics.Metrics) *Handler {
	return &Handler{
		Engine:             eng,
		Ledger:             l,
		Metrics:            m,
		StartTime:          time.Now(),
		BookCapacity:       engine.DefaultBookCapacity,
		EventQueueCapacity: engine.DefaultEventQueueCapacity,
	}
}

// run executes fn under the instruction lock and records it.
func (h *Handler) run(name string, fn func() error) error {
	start := time.Now()
	err := func() error {
		h.mu.Lock()
		defer h.mu.Unlock()
		return fn()
	}()
	if h.Metrics != nil {
		h.Metrics.ObserveInstruction(name, start, err)
	}
	return err
}

// read runs fn under the instruction lock without recording it.
func (h *Handler) read(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn()
}

func (h *Handler) observeMarket(id uuid.UUID) {
	if h.Metrics == nil {
		return
	}
	if m, err := h.Engine.Market(id); err == nil {
		h.Metrics.ObserveMarket(m)
	}
}

func statusFor(kind engine.ErrorKind) int {
	switch kind {
	case engine.KindValidation:
		return fiber.StatusBadRequest
	case engine.KindNotFound:
		return fiber.StatusNotFound
	case engine.KindCapacity:
		return fiber.StatusConflict
	case engine.KindPolicy:
		return fiber.StatusUnprocessableEntity
	case engine.KindUnauthorized:
		return fiber.StatusForbidden
	case engine.KindFunds:
		return fiber.StatusPaymentRequired
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err in the standard error body. Engine errors keep
// their code; anything else is logged and reported as internal.
func respondError(c *fiber.Ctx, instruction string, err error) error {
	var engErr *engine.Error
	if errors.As(err, &engErr) {
		status := statusFor(engErr.Kind)
		ev := log.Warn()
		if status >= fiber.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Err(err).
			Str("instruction", instruction).
			Str("code", engErr.Code).
			Str("ip", c.IP()).
			Msg("Instruction rejected")
		return c.Status(status).JSON(models.ErrorResponse{
			Error: err.Error(),
			Code:  engErr.Code,
		})
	}
	log.Error().
		Err(err).
		Str("instruction", instruction).
		Str("ip", c.IP()).
		Msg("Instruction failed")
	return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
		Error: "Internal server error",
		Code:  "INTERNAL",
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	log.Warn().
		Str("ip", c.IP()).
		Str("path", c.Path()).
		Msg("Invalid request: " + msg)
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: "Invalid request: " + msg,
		Code:  engine.ErrInvalidArgument.Code,
	})
}

func malformedJSON(c *fiber.Ctx, err error) error {
	log.Warn().
		Err(err).
		Str("ip", c.IP()).
		Str("path", c.Path()).
		Msg("Invalid request: malformed JSON")
	return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
		Error: "Invalid request: malformed JSON",
		Code:  engine.ErrInvalidArgument.Code,
	})
}

func parseUUID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

func owner(c *fiber.Ctx) (uuid.UUID, bool) {
	return parseUUID(c.Get(OwnerHeader))
}

func marketID(c *fiber.Ctx) (uuid.UUID, bool) {
	return parseUUID(c.Params("market"))
}

// marketAndOwner reads the market path parameter and the owner header. A
// non-empty problem describes the first one that is malformed.
func marketAndOwner(c *fiber.Ctx) (mid, own uuid.UUID, problem string) {
	mid, ok := marketID(c)
	if !ok {
		return uuid.Nil, uuid.Nil, "market id must be a uuid"
	}
	own, ok = owner(c)
	if !ok {
		return uuid.Nil, uuid.Nil, OwnerHeader + " header must be a uuid"
	}
	return mid, own, ""
}

func parseUUIDs(raw []string) ([]uuid.UUID, bool) {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, ok := parseUUID(r)
		if !ok {
			return nil, false
		}
		out = append(out, id)
	}
	return out, true
}

func optionalUUID(raw *string) (*uuid.UUID, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	id, ok := parseUUID(*raw)
	if !ok {
		return nil, false
	}
	return &id, true
}
