package errors

import (
	stdErrors "errors"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeNotFound          Code = "NOT_FOUND"
	CodeOutOfStock        Code = "OUT_OF_STOCK"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeCartLimit         Code = "CART_LIMIT_EXCEEDED"
	CodeItemLimit         Code = "ITEM_LIMIT_EXCEEDED"
	CodeInvalidQuantity   Code = "INVALID_QUANTITY"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeConflict          Code = "CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit         Code = "RATE_LIMIT_EXCEEDED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeGateway           Code = "GATEWAY_ERROR"
	CodeStoreUnavailable  Code = "STORE_UNAVAILABLE"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces over HTTP.
type Metadata struct {
	HTTPStatus int
	// Retryable tells clients the same request may succeed later.
	Retryable     bool
	PublicMessage string
	// DetailsAllowed lets Details reach the response body.
	DetailsAllowed bool
}

type trait uint8

const (
	retryable trait = 1 << iota
	showDetails
)

func meta(status int, public string, traits trait) Metadata {
	return Metadata{
		HTTPStatus:     status,
		Retryable:      traits&retryable != 0,
		PublicMessage:  public,
		DetailsAllowed: traits&showDetails != 0,
	}
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        meta(http.StatusBadRequest, "validation failed", showDetails),
	CodeNotFound:          meta(http.StatusNotFound, "resource not found", 0),
	CodeOutOfStock:        meta(http.StatusBadRequest, "not enough stock available", showDetails),
	CodeInsufficientStock: meta(http.StatusBadRequest, "insufficient stock for order", showDetails),
	CodeCartLimit:         meta(http.StatusBadRequest, "cart quantity limit exceeded", showDetails),
	CodeItemLimit:         meta(http.StatusBadRequest, "item quantity limit exceeded", showDetails),
	CodeInvalidQuantity:   meta(http.StatusBadRequest, "invalid quantity", showDetails),
	CodeEmptyCart:         meta(http.StatusBadRequest, "cart is empty", 0),
	CodeInvalidTransition: meta(http.StatusBadRequest, "state transition disallowed", showDetails),
	CodeConflict:          meta(http.StatusConflict, "conflict detected", retryable),
	CodeIdempotency:       meta(http.StatusConflict, "idempotency key reused", showDetails),
	CodeRateLimit:         meta(http.StatusTooManyRequests, "rate limit exceeded", 0),
	CodeUnauthorized:      meta(http.StatusUnauthorized, "unauthorized", 0),
	CodeGateway:           meta(http.StatusBadGateway, "payment provider error", retryable),
	CodeStoreUnavailable:  meta(http.StatusServiceUnavailable, "store temporarily unavailable", retryable),
	CodeInternal:          meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:        meta(http.StatusServiceUnavailable, "dependency unavailable", retryable|showDetails),
}

func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Error is a coded application error. The zero-value-safe accessors let
// callers use the result of As without a nil check.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

// WithDetails sets the structured payload shown to clients when the code
// allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return string(e.code) + ": " + e.message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// As returns the outermost *Error in err's chain, or nil.
func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}

// IsCode reports whether the outermost typed error in err's chain carries code.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

// Retryable reports whether err's code marks the failure as transient.
func Retryable(err error) bool {
	typed := As(err)
	return typed != nil && MetadataFor(typed.code).Retryable
}
