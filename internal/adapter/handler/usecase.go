package handler

import (
	"context"
	"time"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

// The transports depend on these rather than the concrete services.

type CartUseCase interface {
	AddItem(ctx context.Context, userID, itemID string, kind domain.Kind, qty int, vendorID string) error
	ChangeQuantity(ctx context.Context, userID, itemID string, kind domain.Kind, delta int) error
	RemoveItem(ctx context.Context, userID, itemID string, kind domain.Kind) error
	GetCartDetails(ctx context.Context, userID string) (domain.CartView, error)
	GetExtras(ctx context.Context, userID string) ([]domain.CatalogItem, error)
}

type OrderUseCase interface {
	PlaceOrder(ctx context.Context, req service.PlaceOrderRequest) (service.PlaceOrderResult, error)
	AdvanceStatus(ctx context.Context, orderID string, next domain.OrderStatus) error
}

type PaymentUseCase interface {
	VerifyAndSettle(ctx context.Context, req service.VerifyRequest) (service.Settlement, error)
}

type ReportUseCase interface {
	GenerateDailyReport(ctx context.Context, vendorID string, date time.Time) (bool, error)
	GenerateDailyReportForUni(ctx context.Context, uniID string, date time.Time) (domain.UniReportSummary, error)
	GetInventoryReport(ctx context.Context, vendorID string, date time.Time) (*domain.InventoryReport, error)
}
