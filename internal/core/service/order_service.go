package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const expireBatchSize = 100

type PlaceOrderRequest struct {
	UserID         string
	OrderType      domain.OrderType
	CollectorName  string
	CollectorPhone string
	Address        string
}

type PlaceOrderResult struct {
	OrderID string
	Total   decimal.Decimal
	Intent  domain.PaymentIntent
}

type OrderService struct {
	orders    port.OrderRepository
	carts     port.CartRepository
	directory port.Directory
	inventory port.InventoryRepository
	gateway   port.PaymentGateway
	currency  string
	now       func() time.Time
	logger    *slog.Logger
}

func NewOrderService(
	orders port.OrderRepository,
	carts port.CartRepository,
	directory port.Directory,
	inventory port.InventoryRepository,
	gateway port.PaymentGateway,
	currency string,
	logger *slog.Logger,
) *OrderService {
	return &OrderService{
		orders:    orders,
		carts:     carts,
		directory: directory,
		inventory: inventory,
		gateway:   gateway,
		currency:  currency,
		now:       time.Now,
		logger:    logger,
	}
}

// PlaceOrder freezes the user's cart into a priced order and opens a payment
// intent for it. The stock check here is point-in-time; nothing is held until
// settlement, and the cart is left untouched.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (res PlaceOrderResult, err error) {
	ctx, span := startSpan(ctx, "OrderService.PlaceOrder",
		attribute.String("user.id", req.UserID), attribute.String("order.type", string(req.OrderType)))
	defer func() { endSpan(span, err) }()

	orderType, err := domain.ParseOrderType(string(req.OrderType))
	if err != nil {
		return PlaceOrderResult{}, err
	}
	if isBlank(req.CollectorName) || isBlank(req.CollectorPhone) {
		return PlaceOrderResult{}, domain.Validation("collectorName and collectorPhone are required")
	}
	if err := requireUser(ctx, s.directory, req.UserID); err != nil {
		return PlaceOrderResult{}, err
	}

	cart, err := s.carts.GetCart(ctx, req.UserID)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("get cart: %w", err)
	}
	if cart.IsEmpty() {
		return PlaceOrderResult{}, domain.Validation("Cart is empty")
	}
	address := ""
	if orderType == domain.OrderTypeDelivery {
		if isBlank(req.Address) {
			return PlaceOrderResult{}, domain.Validation("Address is required for delivery orders.")
		}
		address = strings.TrimSpace(req.Address)
	}

	lines, err := s.priceLines(ctx, cart)
	if err != nil {
		return PlaceOrderResult{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:                   uuid.NewString(),
		UserID:               req.UserID,
		VendorID:             cart.VendorID,
		Type:                 orderType,
		CollectorName:        strings.TrimSpace(req.CollectorName),
		CollectorPhone:       strings.TrimSpace(req.CollectorPhone),
		Address:              address,
		Lines:                lines,
		Total:                domain.PriceOrder(lines, orderType),
		Status:               domain.OrderStatusPendingPayment,
		ReservationExpiresAt: now.Add(domain.ReservationWindow),
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("create order: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, order.Total, s.currency, order.ID)
	if err != nil {
		s.abandonOrder(ctx, order.ID, "intent", err)
		return PlaceOrderResult{}, fmt.Errorf("create payment intent: %w", err)
	}
	if err := s.orders.SetGatewayOrderRef(ctx, order.ID, intent.GatewayOrderRef); err != nil {
		s.abandonOrder(ctx, order.ID, "link", err)
		return PlaceOrderResult{}, fmt.Errorf("link gateway order: %w", err)
	}

	s.logger.Info("order placed",
		slog.String("order_id", order.ID),
		slog.String("user_id", order.UserID),
		slog.String("vendor_id", order.VendorID),
		slog.String("total", order.Total.String()))

	return PlaceOrderResult{OrderID: order.ID, Total: order.Total, Intent: intent}, nil
}

// abandonOrder fails an order that never became payable. It runs detached so
// a cancelled request still leaves no pendingPayment order behind.
func (s *OrderService) abandonOrder(ctx context.Context, orderID, stage string, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := s.orders.TransitionStatus(ctx, orderID, domain.OrderStatusPendingPayment, domain.OrderStatusFailed); err != nil {
		s.logger.Error("failed to mark unpayable order failed",
			slog.String("order_id", orderID), slog.String("stage", stage),
			slog.Any("cause", cause), slog.Any("err", err))
	}
}

// priceLines reads the vendor's live inventory and every item's price in one
// concurrent batch, then re-validates stock line by line.
func (s *OrderService) priceLines(ctx context.Context, cart domain.Cart) ([]domain.OrderLine, error) {
	var inv domain.Inventory
	items := make([]*domain.Item, len(cart.Entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	g.Go(func() error {
		var err error
		inv, err = s.inventory.GetVendorInventory(gctx, cart.VendorID)
		if err != nil {
			return fmt.Errorf("get inventory: %w", err)
		}
		return nil
	})
	for i, e := range cart.Entries {
		g.Go(func() error {
			item, err := s.directory.GetItem(gctx, e.ItemID, e.Kind)
			if err != nil {
				return fmt.Errorf("get item %s: %w", e.ItemID, err)
			}
			items[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lines := make([]domain.OrderLine, 0, len(cart.Entries))
	for i, e := range cart.Entries {
		stock, ok := inv.Stock(e.ItemID, e.Kind)
		if !ok {
			stock = domain.RetailStock{Item: e.ItemID}
			if e.Kind == domain.KindProduce {
				stock = domain.ProduceStock{Item: e.ItemID}
			}
		}
		if err := stock.CheckAvailable(e.Quantity); err != nil {
			return nil, placementStockError(err)
		}
		if items[i] == nil {
			return nil, domain.NotFound("%s item %s missing price.", e.Kind, e.ItemID)
		}
		lines = append(lines, domain.OrderLine{
			ItemID:    e.ItemID,
			Kind:      e.Kind,
			Quantity:  e.Quantity,
			UnitPrice: items[i].Price,
		})
	}
	return lines, nil
}

func placementStockError(err error) error {
	var se *domain.StockError
	if !errors.As(err, &se) {
		return err
	}
	if se.Kind == domain.KindProduce {
		se.Message = fmt.Sprintf("Produce item %s not available.", se.ItemID)
	} else {
		se.Message = fmt.Sprintf("Insufficient stock for Retail item %s: only %d unit(s) available.", se.ItemID, se.Available)
	}
	return se
}

// AdvanceStatus moves a settled order along its fulfilment lifecycle.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, next domain.OrderStatus) (err error) {
	ctx, span := startSpan(ctx, "OrderService.AdvanceStatus",
		attribute.String("order.id", orderID), attribute.String("order.status", string(next)))
	defer func() { endSpan(span, err) }()

	switch next {
	case domain.OrderStatusCompleted, domain.OrderStatusOnTheWay, domain.OrderStatusDelivered:
	default:
		return domain.Validation("Order status %q cannot be set directly", next)
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("get order: %w", err)
	}
	if order == nil {
		return domain.NotFound("Order not found")
	}
	if !order.Status.CanTransitionTo(next) {
		return domain.StateConflict("Cannot move order from %s to %s", order.Status, next)
	}
	if next == domain.OrderStatusOnTheWay && order.Type != domain.OrderTypeDelivery {
		return domain.StateConflict("Only delivery orders can be on the way")
	}

	err = s.orders.TransitionStatus(ctx, orderID, order.Status, next)
	if errors.Is(err, port.ErrOptimisticLock) {
		return domain.StateConflict("Order %s was updated concurrently", orderID)
	}
	if err != nil {
		return fmt.Errorf("transition order: %w", err)
	}
	return nil
}

// ExpireStale fails unpaid orders whose reservation window has passed.
func (s *OrderService) ExpireStale(ctx context.Context) (int, error) {
	ids, err := s.orders.ListExpired(ctx, s.now(), expireBatchSize)
	if err != nil {
		return 0, fmt.Errorf("list expired orders: %w", err)
	}

	expired := 0
	for _, id := range ids {
		err := s.orders.TransitionStatus(ctx, id, domain.OrderStatusPendingPayment, domain.OrderStatusFailed)
		if errors.Is(err, port.ErrOptimisticLock) {
			// settled or failed in the meantime
			continue
		}
		if err != nil {
			return expired, fmt.Errorf("expire order %s: %w", id, err)
		}
		expired++
	}
	if expired > 0 {
		s.logger.Info("expired unpaid orders", slog.Int("count", expired))
	}
	return expired, nil
}

func requireUser(ctx context.Context, directory port.Directory, userID string) error {
	user, err := directory.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return domain.NotFound("User not found")
	}
	return nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
