package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const (
	maxReportAttempts = 3
	maxSettleTries    = 4
	reportFanOutLimit = 8
	dateLayout        = "2006-01-02"
)

// LedgerService owns stock decrements and the per-vendor daily report.
type LedgerService struct {
	inventory port.InventoryRepository
	reports   port.ReportRepository
	history   port.HistoryRepository
	carts     port.CartRepository
	directory port.Directory
	now       func() time.Time
	backOff   func() backoff.BackOff
	logger    *slog.Logger
}

func NewLedgerService(
	inventory port.InventoryRepository,
	reports port.ReportRepository,
	history port.HistoryRepository,
	carts port.CartRepository,
	directory port.Directory,
	logger *slog.Logger,
) *LedgerService {
	return &LedgerService{
		inventory: inventory,
		reports:   reports,
		history:   history,
		carts:     carts,
		directory: directory,
		now:       time.Now,
		backOff:   func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		logger:    logger,
	}
}

// Settle applies a paid order: stock is decremented for every line at once or
// not at all. It returns nil iff the decrement was applied; a shortfall is a
// *domain.StockError. Report, history and cart updates that follow the
// decrement are retried and logged, never returned, since the order is
// already consistent with stock by then.
func (l *LedgerService) Settle(ctx context.Context, order domain.Order) (err error) {
	ctx, span := startSpan(ctx, "LedgerService.Settle",
		attribute.String("order.id", order.ID), attribute.String("vendor.id", order.VendorID))
	defer func() { endSpan(span, err) }()

	if len(order.Lines) == 0 {
		return domain.Validation("Order %s has no items", order.ID)
	}

	// Seeded before the decrement so a new report's opening excludes this
	// order. A settlement straddling midnight books its sale on the earlier day.
	report, _, err := l.ensureReport(ctx, order.VendorID, l.now())
	if err != nil {
		return fmt.Errorf("ensure daily report: %w", err)
	}

	remaining, err := backoff.Retry(ctx, func() (map[string]int, error) {
		remaining, err := l.inventory.ConsumeStock(ctx, order.VendorID, order.Lines)
		if errors.Is(err, domain.ErrStockConflict) {
			return nil, backoff.Permanent(err)
		}
		return remaining, err
	}, backoff.WithBackOff(l.backOff()), backoff.WithMaxTries(maxSettleTries))
	if err != nil {
		if errors.Is(err, domain.ErrStockConflict) {
			l.logger.Warn("order oversold at settlement",
				slog.String("order_id", order.ID), slog.String("vendor_id", order.VendorID), slog.Any("err", err))
			return err
		}
		return fmt.Errorf("consume stock: %w", err)
	}

	sales := make([]domain.SaleLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		sale := domain.SaleLine{ItemID: line.ItemID, Kind: line.Kind, Sold: line.Quantity}
		if line.Kind == domain.KindRetail {
			sale.Remaining = remaining[line.ItemID]
		}
		sales = append(sales, sale)
	}

	l.bookkeep(ctx, "record sales", order.ID, func(ctx context.Context) error {
		return l.reports.RecordSales(ctx, report.ID, sales)
	})
	l.bookkeep(ctx, "append order history", order.ID, func(ctx context.Context) error {
		return l.history.AppendOrderHistory(ctx, order.UserID, order.VendorID, order.ID)
	})
	l.bookkeep(ctx, "clear cart", order.ID, func(ctx context.Context) error {
		return l.carts.ClearCart(ctx, order.UserID)
	})

	l.logger.Info("order settled",
		slog.String("order_id", order.ID), slog.String("vendor_id", order.VendorID), slog.Int("lines", len(order.Lines)))
	return nil
}

func (l *LedgerService) bookkeep(ctx context.Context, step, orderID string, fn func(context.Context) error) {
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, fn(ctx)
	}, backoff.WithBackOff(l.backOff()), backoff.WithMaxTries(maxSettleTries))
	if err != nil {
		l.logger.Error("settlement bookkeeping failed",
			slog.String("step", step), slog.String("order_id", orderID), slog.Any("err", err))
	}
}

// GenerateDailyReport makes sure the vendor has exactly one report for the
// day of date. created is false when it already existed.
func (l *LedgerService) GenerateDailyReport(ctx context.Context, vendorID string, date time.Time) (created bool, err error) {
	ctx, span := startSpan(ctx, "LedgerService.GenerateDailyReport",
		attribute.String("vendor.id", vendorID), attribute.String("date", date.Format(dateLayout)))
	defer func() { endSpan(span, err) }()

	vendor, err := l.directory.GetVendor(ctx, vendorID)
	if err != nil {
		return false, fmt.Errorf("get vendor: %w", err)
	}
	if vendor == nil {
		return false, domain.NotFound("Vendor not found")
	}
	_, created, err = l.ensureReport(ctx, vendorID, date)
	return created, err
}

// GenerateDailyReportForUni runs GenerateDailyReport for every vendor of the university.
func (l *LedgerService) GenerateDailyReportForUni(ctx context.Context, uniID string, date time.Time) (summary domain.UniReportSummary, err error) {
	ctx, span := startSpan(ctx, "LedgerService.GenerateDailyReportForUni", attribute.String("uni.id", uniID))
	defer func() { endSpan(span, err) }()

	uni, err := l.directory.GetUniversity(ctx, uniID)
	if err != nil {
		return summary, fmt.Errorf("get university: %w", err)
	}
	if uni == nil {
		return summary, domain.NotFound("University not found")
	}
	vendorIDs, err := l.directory.ListVendorIDsByUni(ctx, uniID)
	if err != nil {
		return summary, fmt.Errorf("list vendors: %w", err)
	}

	var created atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(reportFanOutLimit)
	for _, vendorID := range vendorIDs {
		g.Go(func() error {
			_, ok, err := l.ensureReport(gctx, vendorID, date)
			if err != nil {
				return fmt.Errorf("vendor %s: %w", vendorID, err)
			}
			if ok {
				created.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}

	summary.Total = len(vendorIDs)
	summary.Created = int(created.Load())
	l.logger.Info("daily reports generated",
		slog.String("uni_id", uniID), slog.Int("total", summary.Total), slog.Int("created", summary.Created))
	return summary, nil
}

// GetInventoryReport returns the vendor's report for the day of date with
// vendor and item names resolved.
func (l *LedgerService) GetInventoryReport(ctx context.Context, vendorID string, date time.Time) (report *domain.InventoryReport, err error) {
	ctx, span := startSpan(ctx, "LedgerService.GetInventoryReport", attribute.String("vendor.id", vendorID))
	defer func() { endSpan(span, err) }()

	vendor, err := l.directory.GetVendor(ctx, vendorID)
	if err != nil {
		return nil, fmt.Errorf("get vendor: %w", err)
	}
	if vendor == nil {
		return nil, domain.NotFound("Vendor not found")
	}
	day := domain.Day(date)
	report, err = l.reports.FindReport(ctx, vendorID, day)
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	if report == nil {
		return nil, domain.NotFound("No inventory report found for vendor %s on %s", vendorID, day.Format(dateLayout))
	}
	report.VendorName = vendor.FullName

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(lookupConcurrency)
	for i := range report.Entries {
		g.Go(func() error {
			e := &report.Entries[i]
			item, err := l.directory.GetItem(gctx, e.ItemID, e.Kind)
			if err != nil {
				return fmt.Errorf("get item %s: %w", e.ItemID, err)
			}
			if item != nil {
				e.Name = item.Name
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// ensureReport finds or creates the vendor's report for the day of at. A
// concurrent creator winning the (vendor, day) uniqueness race is not an
// error: the winner's report is re-read.
func (l *LedgerService) ensureReport(ctx context.Context, vendorID string, at time.Time) (*domain.InventoryReport, bool, error) {
	day := domain.Day(at)
	for attempt := 1; attempt <= maxReportAttempts; attempt++ {
		existing, err := l.reports.FindReport(ctx, vendorID, day)
		if err != nil {
			return nil, false, fmt.Errorf("find report: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}

		inv, err := l.inventory.GetVendorInventory(ctx, vendorID)
		if err != nil {
			return nil, false, fmt.Errorf("get inventory: %w", err)
		}
		prev, err := l.reports.FindReport(ctx, vendorID, day.AddDate(0, 0, -1))
		if err != nil {
			return nil, false, fmt.Errorf("find previous report: %w", err)
		}

		report := domain.SeedReport(uuid.NewString(), vendorID, day, inv, prev, l.now())
		err = l.reports.InsertReport(ctx, report)
		if err == nil {
			return &report, true, nil
		}
		if !errors.Is(err, domain.ErrReportConflict) {
			return nil, false, fmt.Errorf("insert report: %w", err)
		}
		l.logger.Debug("daily report created concurrently, re-reading",
			slog.String("vendor_id", vendorID), slog.Int("attempt", attempt))
	}
	return nil, false, domain.ReportConflict("Daily report for vendor %s on %s could not be resolved", vendorID, day.Format(dateLayout))
}
