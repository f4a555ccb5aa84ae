package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFor(t *testing.T) {
	cases := map[Code]Metadata{
		CodeValidation:        {http.StatusBadRequest, false, "validation failed", true},
		CodeNotFound:          {http.StatusNotFound, false, "resource not found", false},
		CodeInsufficientStock: {http.StatusBadRequest, false, "insufficient stock for order", true},
		CodeEmptyCart:         {http.StatusBadRequest, false, "cart is empty", false},
		CodeIdempotency:       {http.StatusConflict, false, "idempotency key reused", true},
		CodeConflict:          {http.StatusConflict, true, "conflict detected", false},
		CodeRateLimit:         {http.StatusTooManyRequests, false, "rate limit exceeded", false},
		CodeGateway:           {http.StatusBadGateway, true, "payment provider error", false},
		CodeStoreUnavailable:  {http.StatusServiceUnavailable, true, "store temporarily unavailable", false},
		CodeDependency:        {http.StatusServiceUnavailable, true, "dependency unavailable", true},
	}
	for code, want := range cases {
		assert.Equal(t, want, MetadataFor(code), code)
	}
	assert.Equal(t, MetadataFor(CodeInternal), MetadataFor("SOMETHING_UNKNOWN"))
}

func TestEveryCodeHasMetadata(t *testing.T) {
	for _, code := range []Code{
		CodeValidation, CodeNotFound, CodeOutOfStock, CodeInsufficientStock, CodeCartLimit,
		CodeItemLimit, CodeInvalidQuantity, CodeEmptyCart, CodeInvalidTransition, CodeConflict,
		CodeIdempotency, CodeRateLimit, CodeUnauthorized, CodeGateway, CodeStoreUnavailable,
		CodeInternal, CodeDependency,
	} {
		_, ok := metadataByCode[code]
		assert.True(t, ok, code)
	}
}

func TestWrapKeepsCause(t *testing.T) {
	cause := stdErrors.New("connection reset")
	err := Wrap(CodeGateway, cause, "square: create payment").WithDetails(map[string]any{"provider": "square"})

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CodeGateway, err.Code())
	assert.Equal(t, "GATEWAY_ERROR: square: create payment", err.Error())
	assert.Equal(t, map[string]any{"provider": "square"}, err.Details())

	assert.Nil(t, Wrap(CodeInternal, nil, "no cause").Unwrap())
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	assert.Equal(t, CodeInternal, e.Code())
	assert.Empty(t, e.Message())
	assert.Nil(t, e.Details())
	assert.Nil(t, e.WithDetails("x"))
	assert.Empty(t, e.Error())
}

func TestAsAndIsCode(t *testing.T) {
	err := fmt.Errorf("place order: %w", New(CodeEmptyCart, "nothing to order"))

	require.NotNil(t, As(err))
	assert.Equal(t, CodeEmptyCart, As(err).Code())
	assert.True(t, IsCode(err, CodeEmptyCart))
	assert.False(t, IsCode(err, CodeNotFound))
	assert.False(t, IsCode(stdErrors.New("plain"), CodeInternal))
	assert.Nil(t, As(nil))
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(CodeStoreUnavailable, "redis down")))
	assert.False(t, Retryable(New(CodeValidation, "bad sku")))
	assert.False(t, Retryable(stdErrors.New("untyped")))
}

func TestDiagnoseCapturesPostgresFields(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "products_stock_check", TableName: "products", Message: "violates check"}
	d := Diagnose(Wrap(CodeDependency, pgErr, "decrement stock"))

	assert.Equal(t, CodeDependency, d.Code)
	require.NotNil(t, d.Postgres)
	assert.Equal(t, "23514", d.Postgres.SQLState)
	assert.Equal(t, "products_stock_check", d.Postgres.Constraint)
	assert.Equal(t, "products", d.Postgres.Table)
	assert.Len(t, d.Chain, 2)

	fields := d.Fields()
	assert.Equal(t, "products_stock_check", fields["pg_constraint"])
	assert.Equal(t, CodeDependency, fields["error_code"])
}

func TestDiagnoseRecognisesLibPQ(t *testing.T) {
	d := Diagnose(fmt.Errorf("insert order: %w", &pq.Error{Code: "23505", Constraint: "orders_order_number_key"}))

	require.NotNil(t, d.Postgres)
	assert.Equal(t, "23505", d.Postgres.SQLState)
	assert.Equal(t, "orders_order_number_key", d.Postgres.Constraint)
	assert.Empty(t, d.Code)
}

func TestDiagnoseOmitsPostgresForPlainErrors(t *testing.T) {
	d := Diagnose(New(CodeValidation, "quantity must be positive"))
	assert.Nil(t, d.Postgres)
	assert.NotContains(t, d.Fields(), "pg_code")
	assert.Equal(t, Diagnostics{}, Diagnose(nil))
}
