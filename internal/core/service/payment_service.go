package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const (
	settleKeyPrefix = "settle:"

	// settleTimeout bounds the work after the payment row is committed. That
	// work runs detached from the caller so a dropped connection cannot strand
	// a paid order in inProgress.
	settleTimeout = 30 * time.Second
)

// Settler applies a paid order to stock. It returns nil iff the decrement was applied.
type Settler interface {
	Settle(ctx context.Context, order domain.Order) error
}

type VerifyRequest struct {
	OrderID           string
	GatewayOrderRef   string
	GatewayPaymentRef string
	Signature         string
}

type Settlement struct {
	OrderID   string `json:"orderId"`
	PaymentID string `json:"paymentId,omitempty"`
	Duplicate bool   `json:"duplicate"`
}

type PaymentService struct {
	orders    port.OrderRepository
	cache     port.CacheRepository
	gateway   port.PaymentGateway
	ledger    Settler
	publisher port.EventPublisher
	now       func() time.Time
	logger    *slog.Logger
}

func NewPaymentService(
	orders port.OrderRepository,
	cache port.CacheRepository,
	gateway port.PaymentGateway,
	ledger Settler,
	publisher port.EventPublisher,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		orders:    orders,
		cache:     cache,
		gateway:   gateway,
		ledger:    ledger,
		publisher: publisher,
		now:       time.Now,
		logger:    logger,
	}
}

// VerifyAndSettle checks the gateway callback and, exactly once per order,
// records the payment and settles the order against stock. Repeated callbacks
// for an order already past pendingPayment report Duplicate and change nothing.
// A capture for an order that already failed is answered with a conflict and a
// payment.refund_required event.
func (s *PaymentService) VerifyAndSettle(ctx context.Context, req VerifyRequest) (res Settlement, err error) {
	ctx, span := startSpan(ctx, "PaymentService.VerifyAndSettle",
		attribute.String("order.id", req.OrderID), attribute.String("gateway.order_ref", req.GatewayOrderRef))
	defer func() { endSpan(span, err) }()

	if isBlank(req.OrderID) || isBlank(req.GatewayOrderRef) || isBlank(req.GatewayPaymentRef) || isBlank(req.Signature) {
		return Settlement{}, domain.Validation("Missing payment verification fields")
	}

	if !s.gateway.VerifySignature(req.GatewayOrderRef, req.GatewayPaymentRef, req.Signature) {
		return Settlement{}, s.rejectPayment(ctx, req.OrderID, "signature mismatch")
	}

	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return Settlement{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return Settlement{}, domain.NotFound("Order not found")
	}
	if order.GatewayOrderRef == "" || order.GatewayOrderRef != req.GatewayOrderRef {
		return Settlement{}, s.rejectPayment(ctx, order.ID, "gateway order reference mismatch")
	}

	key := settleKeyPrefix + order.ID
	ok, err := s.cache.SetIdempotency(ctx, key)
	if err != nil {
		return Settlement{}, fmt.Errorf("idempotency check: %w", err)
	}
	if !ok {
		return s.duplicate(ctx, req)
	}

	payment := domain.Payment{
		ID:                uuid.NewString(),
		OrderID:           order.ID,
		UserID:            order.UserID,
		Amount:            order.Total,
		Status:            domain.PaymentStatusPaid,
		Method:            domain.PaymentMethodOnline,
		GatewayOrderRef:   req.GatewayOrderRef,
		GatewayPaymentRef: req.GatewayPaymentRef,
		CreatedAt:         s.now(),
	}
	if err := s.orders.BeginSettlement(ctx, payment); err != nil {
		if errors.Is(err, port.ErrOptimisticLock) {
			return s.duplicate(ctx, req)
		}
		if rerr := s.cache.ReleaseIdempotency(ctx, key); rerr != nil {
			s.logger.Error("failed to release settlement key", slog.String("order_id", order.ID), slog.Any("err", rerr))
		}
		return Settlement{}, fmt.Errorf("begin settlement: %w", err)
	}

	order.Status = domain.OrderStatusInProgress
	order.PaymentID = payment.ID

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	if err := s.ledger.Settle(ctx, *order); err != nil {
		s.compensate(ctx, *order, err)
		if errors.Is(err, domain.ErrStockConflict) {
			return Settlement{}, err
		}
		return Settlement{}, fmt.Errorf("settle order: %w", err)
	}

	s.publish(ctx, domain.OrderEvent{
		Type:       domain.EventOrderSettled,
		OrderID:    order.ID,
		UserID:     order.UserID,
		VendorID:   order.VendorID,
		PaymentID:  payment.ID,
		Amount:     order.Total,
		OccurredAt: s.now(),
	})
	s.logger.Info("payment settled",
		slog.String("order_id", order.ID), slog.String("payment_id", payment.ID))

	return Settlement{OrderID: order.ID, PaymentID: payment.ID}, nil
}

// duplicate answers a callback for an order some earlier callback already claimed.
func (s *PaymentService) duplicate(ctx context.Context, req VerifyRequest) (Settlement, error) {
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return Settlement{}, fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return Settlement{}, domain.NotFound("Order not found")
	}
	switch order.Status {
	case domain.OrderStatusPendingPayment:
		return Settlement{}, domain.StateConflict("Payment for order %s is still being processed, retry later", order.ID)
	case domain.OrderStatusFailed:
		if order.PaymentID == "" {
			s.refundLateCapture(ctx, *order, req.GatewayPaymentRef)
		}
		return Settlement{}, domain.StateConflict("Order %s has already failed", order.ID)
	}
	s.logger.Info("duplicate payment callback", slog.String("order_id", order.ID), slog.String("status", string(order.Status)))
	return Settlement{OrderID: order.ID, PaymentID: order.PaymentID, Duplicate: true}, nil
}

// refundLateCapture reports a verified capture for an order that failed before
// any payment was recorded, e.g. expired by the sweeper or failed on a forged
// callback. Consumers dedupe on GatewayPaymentRef.
func (s *PaymentService) refundLateCapture(ctx context.Context, order domain.Order, gatewayPaymentRef string) {
	s.logger.Warn("payment captured for failed order",
		slog.String("order_id", order.ID), slog.String("gateway_payment_ref", gatewayPaymentRef))
	s.publish(ctx, domain.OrderEvent{
		Type:              domain.EventPaymentRefundRequired,
		OrderID:           order.ID,
		UserID:            order.UserID,
		VendorID:          order.VendorID,
		GatewayPaymentRef: gatewayPaymentRef,
		Amount:            order.Total,
		Reason:            "payment captured for failed order",
		OccurredAt:        s.now(),
	})
}

func (s *PaymentService) rejectPayment(ctx context.Context, orderID, reason string) error {
	err := s.orders.TransitionStatus(ctx, orderID, domain.OrderStatusPendingPayment, domain.OrderStatusFailed)
	if err != nil && !errors.Is(err, port.ErrOptimisticLock) {
		s.logger.Error("failed to mark order failed", slog.String("order_id", orderID), slog.Any("err", err))
	}
	s.logger.Warn("payment verification failed", slog.String("order_id", orderID), slog.String("reason", reason))
	s.publish(ctx, domain.OrderEvent{
		Type:       domain.EventPaymentFailed,
		OrderID:    orderID,
		Reason:     reason,
		OccurredAt: s.now(),
	})
	return domain.PaymentVerification("Payment verification failed")
}

// compensate fails a paid order whose stock could not be taken. The payment
// stays recorded; the oversold event is the refund trigger.
func (s *PaymentService) compensate(ctx context.Context, order domain.Order, cause error) {
	err := s.orders.TransitionStatus(ctx, order.ID, domain.OrderStatusInProgress, domain.OrderStatusFailed)
	if err != nil {
		s.logger.Error("failed to mark oversold order failed", slog.String("order_id", order.ID), slog.Any("err", err))
	}
	s.publish(ctx, domain.OrderEvent{
		Type:       domain.EventOrderOversold,
		OrderID:    order.ID,
		UserID:     order.UserID,
		VendorID:   order.VendorID,
		PaymentID:  order.PaymentID,
		Amount:     order.Total,
		Reason:     cause.Error(),
		OccurredAt: s.now(),
	})
}

func (s *PaymentService) publish(ctx context.Context, event domain.OrderEvent) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Error("failed to publish order event",
			slog.String("type", event.Type), slog.String("order_id", event.OrderID), slog.Any("err", err))
	}
}
