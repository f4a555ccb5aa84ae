package types

import "time"

// SalesQueryRequest bounds a sales report.
type SalesQueryRequest struct {
	Start time.Time
	End   time.Time
}

// TimeSeriesPoint describes a single date/value pair returned by the query service.
type TimeSeriesPoint struct {
	Date  string `json:"date"`
	Value int64  `json:"value"`
}

// LabelValue represents a top-N entry such as a product or payment method.
type LabelValue struct {
	Label string `json:"label"`
	Value int64  `json:"value"`
}

// SalesReport is the admin sales dashboard payload. Money is in cents.
type SalesReport struct {
	OrdersCreated      []TimeSeriesPoint `json:"ordersCreated"`
	RevenueCents       []TimeSeriesPoint `json:"revenueCents"`
	TopProducts        []LabelValue      `json:"topProducts"`
	PaymentMethods     []LabelValue      `json:"paymentMethods"`
	AverageOrderCents  float64           `json:"averageOrderCents"`
	PaidOrders         int64             `json:"paidOrders"`
	CancelledOrders    int64             `json:"cancelledOrders"`
	FailedPaymentCount int64             `json:"failedPaymentCount"`
}
