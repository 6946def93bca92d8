package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusPaid   = "paid"
	PaymentMethodOnline = "razorpay"
)

// Payment is written once per verified order and never changed.
type Payment struct {
	ID                string
	OrderID           string
	UserID            string
	Amount            decimal.Decimal
	Status            string
	Method            string
	GatewayOrderRef   string
	GatewayPaymentRef string
	CreatedAt         time.Time
}

// PaymentIntent is what the client needs to open the gateway checkout.
type PaymentIntent struct {
	KeyID           string `json:"key"`
	GatewayOrderRef string `json:"order_id"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
}
