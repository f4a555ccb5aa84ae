package square

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	sq "github.com/square/square-go-sdk"
	sqcore "github.com/square/square-go-sdk/core"

	pkgerrors "github.com/angelmondragon/mycoshop-backend/pkg/errors"
)

// translateError maps a Square API failure onto the shop error codes.
// Declines come back as validation errors carrying Square's decline code so
// the shopper can retry with another card.
func translateError(err error, op string) error {
	if err == nil {
		return nil
	}
	msg := "square " + op + " failed"

	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg)
	}

	code := codeForStatus(apiErr.StatusCode)
	var details map[string]any
	for _, sqErr := range squareErrors(apiErr) {
		switch {
		case sqErr.Code == sq.ErrorCodeIdempotencyKeyReused:
			code = pkgerrors.CodeIdempotency
		case sqErr.Category == sq.ErrorCategoryAuthenticationError:
			code = pkgerrors.CodeGateway
		case sqErr.Category == sq.ErrorCategoryPaymentMethodError:
			code = pkgerrors.CodeValidation
			details = map[string]any{"decline_code": string(sqErr.Code)}
		default:
			continue
		}
		break
	}

	wrapped := pkgerrors.Wrap(code, err, msg)
	if details != nil {
		wrapped = wrapped.WithDetails(details)
	}
	return wrapped
}

// squareErrors decodes the errors array the SDK keeps as the API error body.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body) != nil {
		return nil
	}
	out := body.Errors[:0]
	for _, e := range body.Errors {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

func codeForStatus(status int) pkgerrors.Code {
	switch status {
	case http.StatusNotFound:
		return pkgerrors.CodeNotFound
	case http.StatusConflict:
		return pkgerrors.CodeConflict
	case http.StatusBadRequest, http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return pkgerrors.CodeValidation
	default:
		return pkgerrors.CodeGateway
	}
}
