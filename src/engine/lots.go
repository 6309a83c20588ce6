package engine

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

var maxUint64Dec = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Lots converts between native token amounts and integer lot units for one
// market. Native amounts are decimals; lot counts are int64 and every
// multiplication on them is overflow-checked.
type Lots struct {
	BaseLotSize  int64
	QuoteLotSize int64
}

// BaseNative returns lots × base lot size.
func (l Lots) BaseNative(lots int64) (decimal.Decimal, error) {
	n, err := mulLots(lots, l.BaseLotSize)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(n), nil
}

// QuoteNative returns quote lots × quote lot size.
func (l Lots) QuoteNative(quoteLots int64) (decimal.Decimal, error) {
	n, err := mulLots(quoteLots, l.QuoteLotSize)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(n), nil
}

// Notional returns the quote lots and native quote amount of baseLots traded
// at priceLots.
func (l Lots) Notional(priceLots, baseLots int64) (int64, decimal.Decimal, error) {
	quoteLots, err := mulLots(priceLots, baseLots)
	if err != nil {
		return 0, decimal.Zero, err
	}
	native, err := l.QuoteNative(quoteLots)
	if err != nil {
		return 0, decimal.Zero, err
	}
	return quoteLots, native, nil
}

// NativePriceToLots converts a native price (quote native per base native)
// into quote lots per base lot, without rounding.
func (l Lots) NativePriceToLots(price decimal.Decimal) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(l.BaseLotSize)).Div(decimal.NewFromInt(l.QuoteLotSize))
}

// LotsToNativePrice is the inverse of NativePriceToLots.
func (l Lots) LotsToNativePrice(priceLots int64) decimal.Decimal {
	return decimal.NewFromInt(priceLots).Mul(decimal.NewFromInt(l.QuoteLotSize)).Div(decimal.NewFromInt(l.BaseLotSize))
}

// ToNativeUnits floors a native decimal balance to whole token units, the
// part that can leave the market. The remainder stays with the account.
func ToNativeUnits(amount decimal.Decimal) (uint64, error) {
	if amount.Sign() <= 0 {
		return 0, nil
	}
	floored := amount.Floor()
	if floored.GreaterThan(maxUint64Dec) {
		return 0, ErrArithmeticOverflow.withMsg("native amount %s exceeds uint64", floored)
	}
	return floored.BigInt().Uint64(), nil
}

// NativeDecimal lifts a token amount into the decimal domain.
func NativeDecimal(amount uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), 0)
}

func mulLots(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return 0, ErrArithmeticOverflow.withMsg("negative operand %d x %d", a, b)
	}
	if a != 0 && b > math.MaxInt64/a {
		return 0, ErrArithmeticOverflow.withMsg("%d x %d overflows", a, b)
	}
	return a * b, nil
}

func addLots(a, b int64) (int64, error) {
	if (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b) {
		return 0, ErrArithmeticOverflow.withMsg("%d + %d overflows", a, b)
	}
	return a + b, nil
}
