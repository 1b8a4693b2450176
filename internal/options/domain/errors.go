package domain

import (
	"errors"
	"fmt"
)

// ErrorKind 错误大类，接口层据此映射 HTTP / gRPC 状态码
type ErrorKind string

const (
	KindAuthorization ErrorKind = "AUTHORIZATION"
	KindValidation    ErrorKind = "VALIDATION"
	KindNotFound      ErrorKind = "NOT_FOUND"
	KindTemporal      ErrorKind = "TEMPORAL"
	KindFinancial     ErrorKind = "FINANCIAL"
	KindAssetPolicy   ErrorKind = "ASSET_POLICY"
	KindCapacity      ErrorKind = "CAPACITY"
	KindTransfer      ErrorKind = "TRANSFER"
)

// Error 领域错误。同一 Code 视为同一错误，errors.Is 按 Code 比较
type Error struct {
	Kind    ErrorKind
	Code    uint32
	Message string
	cause   error
}

func newError(kind ErrorKind, code uint32, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (u%d): %v", e.Message, e.Code, e.cause)
	}
	return fmt.Sprintf("%s (u%d)", e.Message, e.Code)
}

// Is 按 Code 匹配
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

func (e *Error) Unwrap() error { return e.cause }

// Wrap 返回携带底层原因的副本，不修改哨兵本身
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.cause = cause
	return &cp
}

var (
	ErrOwnerOnly              = newError(KindAuthorization, 100, "caller is not the contract owner")
	ErrOptionNotFound         = newError(KindNotFound, 101, "option not found")
	ErrNotHolder              = newError(KindAuthorization, 102, "caller is not the option holder")
	ErrOptionExpired          = newError(KindTemporal, 103, "option expired")
	ErrAlreadyExercised       = newError(KindFinancial, 104, "option already exercised")
	ErrInsufficientCollateral = newError(KindFinancial, 105, "insufficient collateral")
	ErrInvalidExpiry          = newError(KindValidation, 106, "expiry must be after current height")
	ErrInvalidStrike          = newError(KindValidation, 107, "strike price must be positive")
	ErrInvalidPremium         = newError(KindValidation, 108, "premium must be positive")
	ErrAssetNotWhitelisted    = newError(KindAssetPolicy, 109, "asset not whitelisted")
	ErrSymbolNotAllowed       = newError(KindAssetPolicy, 110, "symbol not allowed")
	ErrInvalidTimestamp       = newError(KindTemporal, 111, "invalid price timestamp")
	ErrInvalidPrice           = newError(KindValidation, 112, "price must be positive")
	ErrAlreadyHeld            = newError(KindFinancial, 113, "option already has a holder")
	ErrListFull               = newError(KindCapacity, 114, "option list is full")
	ErrInvalidAsset           = newError(KindValidation, 115, "invalid asset identifier")
	ErrInvalidSymbol          = newError(KindValidation, 116, "invalid symbol")
	ErrCriticalItem           = newError(KindAssetPolicy, 117, "critical item cannot be removed")
	ErrInvalidFeeRate         = newError(KindValidation, 118, "fee rate exceeds maximum")
	ErrPriceFeedNotFound      = newError(KindNotFound, 119, "price feed not found")
	ErrTransferFailed         = newError(KindTransfer, 120, "asset transfer failed")
	ErrInvalidOptionType      = newError(KindValidation, 121, "invalid option type")
	ErrAssetMismatch          = newError(KindAssetPolicy, 122, "asset does not match the option")
	ErrCustodyCaller          = newError(KindAuthorization, 123, "custody principal cannot act as caller")
	ErrAmountTooLarge         = newError(KindValidation, 124, "value exceeds supported range")
)

// KindOf 提取错误大类，非领域错误返回 false
func KindOf(err error) (ErrorKind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return "", false
}

// CodeOf 提取错误码，非领域错误返回 0
func CodeOf(err error) uint32 {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return 0
}
