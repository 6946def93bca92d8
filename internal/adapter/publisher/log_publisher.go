package publisher

import (
	"context"
	"log/slog"

	"github.com/rl1809/campus-order/internal/core/domain"
)

// LogPublisher records events in the log only. Used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, event domain.OrderEvent) error {
	p.logger.Info("order event",
		slog.String("type", event.Type),
		slog.String("order_id", event.OrderID),
		slog.String("payment_id", event.PaymentID),
		slog.String("gateway_payment_ref", event.GatewayPaymentRef),
		slog.String("amount", event.Amount.String()),
		slog.String("reason", event.Reason))
	return nil
}

func (p *LogPublisher) Close() error { return nil }
