package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/port"
)

const mysqlDuplicateEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func (m *MySQLAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, vendor_id, order_type, collector_name, collector_phone, address,
			total, status, reservation_expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.VendorID, order.Type, order.CollectorName, order.CollectorPhone,
		order.Address, order.Total, order.Status, order.ReservationExpiresAt, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for i, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_id, kind, position, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			order.ID, line.ItemID, line.Kind, i, line.Quantity, line.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order item %s: %w", line.ItemID, err)
		}
	}

	return tx.Commit()
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var (
		order      domain.Order
		paymentID  sql.NullString
		gatewayRef sql.NullString
	)
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, vendor_id, order_type, collector_name, collector_phone, address, total, status,
			payment_id, gateway_order_ref, reservation_expires_at, created_at, updated_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&order.ID, &order.UserID, &order.VendorID, &order.Type, &order.CollectorName, &order.CollectorPhone,
		&order.Address, &order.Total, &order.Status, &paymentID, &gatewayRef,
		&order.ReservationExpiresAt, &order.CreatedAt, &order.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	order.PaymentID = paymentID.String
	order.GatewayOrderRef = gatewayRef.String

	rows, err := m.db.QueryContext(ctx, `
		SELECT item_id, kind, quantity, unit_price
		FROM order_items WHERE order_id = ? ORDER BY position`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ItemID, &line.Kind, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return &order, nil
}

func (m *MySQLAdapter) SetGatewayOrderRef(ctx context.Context, orderID, ref string) error {
	_, err := m.db.ExecContext(ctx, `
		UPDATE orders SET gateway_order_ref = ?, updated_at = ? WHERE id = ?`,
		ref, time.Now().UTC(), orderID,
	)
	if err != nil {
		return fmt.Errorf("update gateway ref: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) TransitionStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), orderID, from,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}
	return nil
}

// BeginSettlement claims the order for exactly one payment. The status
// transition and the payment insert commit together, so a second callback
// either loses the conditional update or hits uq_payments_order.
func (m *MySQLAdapter) BeginSettlement(ctx context.Context, p domain.Payment) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE orders SET status = ?, payment_id = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		domain.OrderStatusInProgress, p.ID, p.CreatedAt, p.OrderID, domain.OrderStatusPendingPayment,
	)
	if err != nil {
		return fmt.Errorf("claim order: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return port.ErrOptimisticLock
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO payments (id, order_id, user_id, amount, status, method, gateway_order_ref, gateway_payment_ref, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OrderID, p.UserID, p.Amount, p.Status, p.Method, p.GatewayOrderRef, p.GatewayPaymentRef, p.CreatedAt,
	)
	if isDuplicateKey(err) {
		return port.ErrOptimisticLock
	}
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	return tx.Commit()
}

func (m *MySQLAdapter) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id FROM orders
		WHERE status = ? AND reservation_expires_at < ?
		ORDER BY reservation_expires_at
		LIMIT ?`,
		domain.OrderStatusPendingPayment, now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query expired orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan order id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (m *MySQLAdapter) AppendOrderHistory(ctx context.Context, userID, vendorID, orderID string) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO user_orders (user_id, order_id) VALUES (?, ?)`, userID, orderID); err != nil {
		return fmt.Errorf("append user order: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT IGNORE INTO vendor_active_orders (vendor_id, order_id) VALUES (?, ?)`, vendorID, orderID); err != nil {
		return fmt.Errorf("append vendor order: %w", err)
	}

	return tx.Commit()
}
