package square

import (
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams is one card charge. AmountCents is in the smallest
// unit of Currency.
type PaymentCreateParams struct {
	AmountCents    int64
	Currency       string
	LocationID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
	BuyerEmail     string
	Autocomplete   bool
}

func (p PaymentCreateParams) request() *sq.CreatePaymentRequest {
	autocomplete := p.Autocomplete
	req := &sq.CreatePaymentRequest{
		IdempotencyKey:    p.IdempotencyKey,
		SourceID:          p.SourceID,
		Autocomplete:      &autocomplete,
		LocationID:        optional(p.LocationID),
		Note:              optional(p.Note),
		ReferenceID:       optional(p.ReferenceID),
		BuyerEmailAddress: optional(p.BuyerEmail),
	}
	if p.AmountCents > 0 {
		amount := p.AmountCents
		currency := sq.Currency(currencyCode(p.Currency))
		req.AmountMoney = &sq.Money{Amount: &amount, Currency: &currency}
	}
	return req
}

// optional trims value and maps blanks to nil.
func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func currencyCode(code string) string {
	if code = strings.ToUpper(strings.TrimSpace(code)); code != "" {
		return code
	}
	return "USD"
}
