package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventOrderSettled  = "order.settled"
	EventOrderOversold = "order.oversold"
	EventPaymentFailed = "payment.failed"

	EventPaymentRefundRequired = "payment.refund_required"
)

// OrderEvent is published after settlement outcomes. An order.oversold event
// means the payment was captured but stock was not: it must be refunded.
// payment.refund_required is raised for a capture that arrives after the
// order already failed; GatewayPaymentRef identifies the capture to reverse.
type OrderEvent struct {
	Type              string          `json:"type"`
	OrderID           string          `json:"orderId"`
	UserID            string          `json:"userId,omitempty"`
	VendorID          string          `json:"vendorId,omitempty"`
	PaymentID         string          `json:"paymentId,omitempty"`
	GatewayPaymentRef string          `json:"gatewayPaymentRef,omitempty"`
	Amount            decimal.Decimal `json:"amount"`
	Reason            string          `json:"reason,omitempty"`
	OccurredAt        time.Time       `json:"occurredAt"`
}
