package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/campus-order/internal/core/domain"
)

type PaymentGateway interface {
	// CreateIntent opens a gateway order for amount, keyed by our reference
	CreateIntent(ctx context.Context, amount decimal.Decimal, currency, reference string) (domain.PaymentIntent, error)

	// VerifySignature checks the gateway's signature over orderRef|paymentRef
	VerifySignature(gatewayOrderRef, gatewayPaymentRef, signature string) bool
}

type EventPublisher interface {
	Publish(ctx context.Context, event domain.OrderEvent) error
}
