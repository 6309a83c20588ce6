package engine

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Oracle reads the current native price of a market's base token in quote.
// A missing price disables pegged matching for that instruction.
type Oracle interface {
	Price(market uuid.UUID) (decimal.Decimal, bool)
}

// StubOracle is a settable price feed for development and tests.
type StubOracle struct {
	prices map[uuid.UUID]decimal.Decimal
}

func NewStubOracle() *StubOracle {
	return &StubOracle{prices: make(map[uuid.UUID]decimal.Decimal)}
}

func (s *StubOracle) Price(market uuid.UUID) (decimal.Decimal, bool) {
	p, ok := s.prices[market]
	return p, ok
}

// Set stores price for market; a non-positive price clears it.
func (s *StubOracle) Set(market uuid.UUID, price decimal.Decimal) {
	if !price.IsPositive() {
		delete(s.prices, market)
		return
	}
	s.prices[market] = price
}
