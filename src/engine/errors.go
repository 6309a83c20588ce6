package engine

import "fmt"

// ErrorKind groups error codes by how the caller is expected to react.
type ErrorKind string

const (
	KindValidation   ErrorKind = "VALIDATION"
	KindCapacity     ErrorKind = "CAPACITY"
	KindPolicy       ErrorKind = "POLICY"
	KindArithmetic   ErrorKind = "ARITHMETIC"
	KindFunds        ErrorKind = "FUNDS"
	KindNotFound     ErrorKind = "NOT_FOUND"
	KindUnauthorized ErrorKind = "UNAUTHORIZED"
)

// Error is returned by every engine instruction. Two errors are equal under
// errors.Is when their codes match, so callers can compare against the
// exported sentinels regardless of the attached message.
type Error struct {
	Code string
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) withMsg(format string, args ...any) *Error {
	return &Error{Code: e.Code, Kind: e.Kind, Msg: fmt.Sprintf(format, args...)}
}

var (
	ErrInvalidPrice        = &Error{Code: "INVALID_PRICE", Kind: KindValidation}
	ErrInvalidQuantity     = &Error{Code: "INVALID_QUANTITY", Kind: KindValidation}
	ErrInvalidMarketParams = &Error{Code: "INVALID_MARKET_PARAMS", Kind: KindValidation}
	ErrInvalidArgument     = &Error{Code: "INVALID_ARGUMENT", Kind: KindValidation}
	ErrOracleUnavailable   = &Error{Code: "ORACLE_UNAVAILABLE", Kind: KindValidation}

	ErrBookFull       = &Error{Code: "BOOK_FULL", Kind: KindCapacity}
	ErrOpenOrdersFull = &Error{Code: "OPEN_ORDERS_FULL", Kind: KindCapacity}

	ErrWouldNotFullyFill = &Error{Code: "WOULD_NOT_FULLY_FILL", Kind: KindPolicy}
	ErrSelfTradeReject   = &Error{Code: "SELF_TRADE_REJECT", Kind: KindPolicy}
	ErrAccountNotEmpty   = &Error{Code: "ACCOUNT_NOT_EMPTY", Kind: KindPolicy}

	ErrUnauthorized = &Error{Code: "UNAUTHORIZED", Kind: KindUnauthorized}

	ErrArithmeticOverflow = &Error{Code: "ARITHMETIC_OVERFLOW", Kind: KindArithmetic}

	ErrInsufficientFunds = &Error{Code: "INSUFFICIENT_FUNDS", Kind: KindFunds}

	ErrMarketNotFound  = &Error{Code: "MARKET_NOT_FOUND", Kind: KindNotFound}
	ErrAccountNotFound = &Error{Code: "ACCOUNT_NOT_FOUND", Kind: KindNotFound}
	ErrAccountExists   = &Error{Code: "ACCOUNT_EXISTS", Kind: KindPolicy}
)
