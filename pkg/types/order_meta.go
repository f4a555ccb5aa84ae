package types

import (
	"database/sql/driver"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/mycoshop-backend/pkg/enums"
)

// StatusHistoryEntry is one append-only record of an order transition.
type StatusHistoryEntry struct {
	Status    enums.OrderStatus `json:"status"`
	Note      string            `json:"note,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

type StatusHistory []StatusHistoryEntry

func (h StatusHistory) Value() (driver.Value, error) {
	if h == nil {
		return "[]", nil
	}
	return jsonValue([]StatusHistoryEntry(h))
}

func (h *StatusHistory) Scan(value interface{}) error {
	if value == nil {
		*h = StatusHistory{}
		return nil
	}
	out := StatusHistory{}
	if err := scanJSON("status history", value, &out); err != nil {
		return err
	}
	*h = out
	return nil
}

// Append returns a copy with entry added at the end.
func (h StatusHistory) Append(status enums.OrderStatus, note string, at time.Time) StatusHistory {
	out := make(StatusHistory, 0, len(h)+1)
	out = append(out, h...)
	return append(out, StatusHistoryEntry{Status: status, Note: note, Timestamp: at.UTC()})
}

// PaymentDetails holds provider metadata reported with a payment outcome.
type PaymentDetails struct {
	Provider    string           `json:"provider,omitempty"`
	ProviderRef string           `json:"providerRef,omitempty"`
	PayerEmail  string           `json:"payerEmail,omitempty"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Currency    string           `json:"currency,omitempty"`
	Reason      string           `json:"reason,omitempty"`
	CapturedAt  *time.Time       `json:"capturedAt,omitempty"`
}

func (p PaymentDetails) Value() (driver.Value, error) {
	return jsonValue(p)
}

func (p *PaymentDetails) Scan(value interface{}) error {
	if value == nil {
		*p = PaymentDetails{}
		return nil
	}
	var out PaymentDetails
	if err := scanJSON("payment details", value, &out); err != nil {
		return err
	}
	*p = out
	return nil
}

// Tracking is the carrier information attached once an order ships.
type Tracking struct {
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
	URL            string `json:"url,omitempty"`
}

func (t Tracking) IsZero() bool {
	return t.Carrier == "" && t.TrackingNumber == "" && t.URL == ""
}

func (t Tracking) Value() (driver.Value, error) {
	return jsonValue(t)
}

func (t *Tracking) Scan(value interface{}) error {
	if value == nil {
		*t = Tracking{}
		return nil
	}
	var out Tracking
	if err := scanJSON("tracking", value, &out); err != nil {
		return err
	}
	*t = out
	return nil
}
