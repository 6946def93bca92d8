package port

import (
	"context"
	"time"

	"github.com/rl1809/campus-order/internal/core/domain"
)

type OrderRepository interface {
	// CreateOrder persists a new order and its lines
	CreateOrder(ctx context.Context, order domain.Order) error

	// GetOrder returns nil, nil when the order does not exist
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	// SetGatewayOrderRef links the gateway's order reference
	SetGatewayOrderRef(ctx context.Context, orderID, ref string) error

	// TransitionStatus moves the order from -> to, ErrOptimisticLock if it is not in from
	TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error

	// BeginSettlement atomically moves pendingPayment -> inProgress, links and inserts
	// the payment. ErrOptimisticLock if the order already left pendingPayment.
	BeginSettlement(ctx context.Context, payment domain.Payment) error

	// ListExpired returns ids of pendingPayment orders whose reservation ended before now
	ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type InventoryRepository interface {
	// GetVendorInventory returns the live stock of a vendor
	GetVendorInventory(ctx context.Context, vendorID string) (domain.Inventory, error)

	// ConsumeStock applies every line as one conditional update set: either all
	// retail lines had enough stock and were decremented, or nothing changed and
	// a *domain.StockError is returned. Returns remaining retail quantities.
	ConsumeStock(ctx context.Context, vendorID string, lines []domain.OrderLine) (map[string]int, error)
}

type ReportRepository interface {
	// FindReport returns nil, nil when no report exists for the vendor on day
	FindReport(ctx context.Context, vendorID string, day time.Time) (*domain.InventoryReport, error)

	// InsertReport creates the report; domain.ErrReportConflict if one already
	// exists for (vendor, day)
	InsertReport(ctx context.Context, report domain.InventoryReport) error

	// RecordSales folds settled lines into the report's entries
	RecordSales(ctx context.Context, reportID string, sales []domain.SaleLine) error
}

type HistoryRepository interface {
	// AppendOrderHistory links the order to the user's history and the vendor's active orders
	AppendOrderHistory(ctx context.Context, userID, vendorID, orderID string) error
}

// Directory is the read-only view of users, vendors, universities and the item catalog.
type Directory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	GetVendor(ctx context.Context, vendorID string) (*domain.Vendor, error)
	GetUniversity(ctx context.Context, uniID string) (*domain.University, error)
	GetItem(ctx context.Context, itemID string, kind domain.Kind) (*domain.Item, error)
	ListVendorIDsByUni(ctx context.Context, uniID string) ([]string, error)
}
