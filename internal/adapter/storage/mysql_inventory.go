package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/rl1809/campus-order/internal/core/domain"
)

const produceAvailable = "Y"

func (m *MySQLAdapter) GetVendorInventory(ctx context.Context, vendorID string) (domain.Inventory, error) {
	inv := domain.NewInventory(vendorID)

	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, quantity FROM retail_inventory WHERE vendor_id = ?`, vendorID)
	if err != nil {
		return inv, fmt.Errorf("query retail inventory: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			itemID string
			qty    int
		)
		if err := rows.Scan(&itemID, &qty); err != nil {
			return inv, fmt.Errorf("scan retail inventory: %w", err)
		}
		inv.Retail[itemID] = qty
	}
	if err := rows.Err(); err != nil {
		return inv, fmt.Errorf("iterate retail inventory: %w", err)
	}

	prows, err := m.db.QueryContext(ctx, `
		SELECT item_id, is_available FROM produce_inventory WHERE vendor_id = ?`, vendorID)
	if err != nil {
		return inv, fmt.Errorf("query produce inventory: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var itemID, flag string
		if err := prows.Scan(&itemID, &flag); err != nil {
			return inv, fmt.Errorf("scan produce inventory: %w", err)
		}
		inv.Produce[itemID] = strings.EqualFold(flag, produceAvailable)
	}
	if err := prows.Err(); err != nil {
		return inv, fmt.Errorf("iterate produce inventory: %w", err)
	}

	return inv, nil
}

// ConsumeStock decrements every retail line with a conditional update inside
// one transaction. Lines are applied in item order so concurrent settlements
// lock rows in the same order. Produce lines need no write.
func (m *MySQLAdapter) ConsumeStock(ctx context.Context, vendorID string, lines []domain.OrderLine) (map[string]int, error) {
	retail := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		if l.Kind == domain.KindRetail {
			retail = append(retail, l)
		}
	}
	slices.SortFunc(retail, func(a, b domain.OrderLine) int {
		return strings.Compare(a.ItemID, b.ItemID)
	})

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	remaining := make(map[string]int, len(retail))
	for _, l := range retail {
		result, err := tx.ExecContext(ctx, `
			UPDATE retail_inventory
			SET quantity = quantity - ?, version = version + 1
			WHERE vendor_id = ? AND item_id = ? AND quantity >= ?`,
			l.Quantity, vendorID, l.ItemID, l.Quantity,
		)
		if err != nil {
			return nil, fmt.Errorf("decrement %s: %w", l.ItemID, err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return nil, &domain.StockError{ItemID: l.ItemID, Kind: l.Kind, Requested: l.Quantity, Available: -1}
		}

		var qty int
		if err := tx.QueryRowContext(ctx, `
			SELECT quantity FROM retail_inventory WHERE vendor_id = ? AND item_id = ?`,
			vendorID, l.ItemID,
		).Scan(&qty); err != nil {
			return nil, fmt.Errorf("read remaining %s: %w", l.ItemID, err)
		}
		remaining[l.ItemID] = qty
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return remaining, nil
}
