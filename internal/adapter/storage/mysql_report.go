package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/campus-order/internal/core/domain"
)

func (m *MySQLAdapter) FindReport(ctx context.Context, vendorID string, day time.Time) (*domain.InventoryReport, error) {
	var report domain.InventoryReport
	err := m.db.QueryRowContext(ctx, `
		SELECT id, vendor_id, report_date, created_at
		FROM inventory_reports WHERE vendor_id = ? AND report_date = ?`,
		vendorID, domain.Day(day).Format(time.DateOnly),
	).Scan(&report.ID, &report.VendorID, &report.Day, &report.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	report.Day = domain.Day(report.Day)

	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, kind, opening_qty, sold_qty, closing_qty
		FROM inventory_report_entries WHERE report_id = ?
		ORDER BY kind DESC, item_id`, report.ID)
	if err != nil {
		return nil, fmt.Errorf("query report entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e domain.ReportEntry
		if err := rows.Scan(&e.ItemID, &e.Kind, &e.OpeningQty, &e.SoldQty, &e.ClosingQty); err != nil {
			return nil, fmt.Errorf("scan report entry: %w", err)
		}
		report.Entries = append(report.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report entries: %w", err)
	}

	return &report, nil
}

// InsertReport relies on uq_inventory_reports_vendor_day: a concurrent
// creator for the same vendor and day surfaces as domain.ErrReportConflict.
func (m *MySQLAdapter) InsertReport(ctx context.Context, report domain.InventoryReport) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO inventory_reports (id, vendor_id, report_date, created_at)
		VALUES (?, ?, ?, ?)`,
		report.ID, report.VendorID, domain.Day(report.Day).Format(time.DateOnly), report.CreatedAt,
	)
	if isDuplicateKey(err) {
		return domain.ErrReportConflict
	}
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}

	for _, e := range report.Entries {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO inventory_report_entries (report_id, item_id, kind, opening_qty, sold_qty, closing_qty)
			VALUES (?, ?, ?, ?, ?, ?)`,
			report.ID, e.ItemID, e.Kind, e.OpeningQty, e.SoldQty, e.ClosingQty,
		)
		if err != nil {
			return fmt.Errorf("insert report entry %s: %w", e.ItemID, err)
		}
	}

	return tx.Commit()
}

// RecordSales upserts one entry per sale. The insert branch carries the
// values of a fresh entry; the update branch sells from the closing quantity.
func (m *MySQLAdapter) RecordSales(ctx context.Context, reportID string, sales []domain.SaleLine) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, s := range sales {
		fresh := domain.ApplySale(nil, s)[0]
		closingDelta := 0
		if s.Kind == domain.KindRetail {
			closingDelta = s.Sold
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO inventory_report_entries (report_id, item_id, kind, opening_qty, sold_qty, closing_qty)
			VALUES (?, ?, ?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE sold_qty = sold_qty + ?, closing_qty = closing_qty - ?`,
			reportID, s.ItemID, s.Kind, fresh.OpeningQty, fresh.SoldQty, fresh.ClosingQty,
			s.Sold, closingDelta,
		)
		if err != nil {
			return fmt.Errorf("record sale %s: %w", s.ItemID, err)
		}
	}

	return tx.Commit()
}
