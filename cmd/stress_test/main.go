package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/campus-order/internal/adapter/gateway"
	"github.com/rl1809/campus-order/internal/adapter/publisher"
	"github.com/rl1809/campus-order/internal/adapter/storage"
	"github.com/rl1809/campus-order/internal/core/domain"
	"github.com/rl1809/campus-order/internal/core/service"
)

const (
	uniID    = "stress-uni"
	vendorID = "stress-vendor"
	itemID   = "stress-item"
	secret   = "stress-secret"
)

func main() {
	mysqlDSN := flag.String("mysql", envOr("MYSQL_DSN", "root:root@tcp(localhost:3306)/campus?parseTime=true&multiStatements=true"), "mysql dsn")
	redisAddr := flag.String("redis", envOr("REDIS_ADDR", "localhost:6379"), "redis address")
	initialStock := flag.Int("stock", 20, "starting retail stock")
	totalOrders := flag.Int("orders", 50, "concurrent one-unit orders to settle")
	flag.Parse()

	ctx := context.Background()

	// Initialize MySQL
	db, err := sql.Open("mysql", *mysqlDSN)
	if err != nil {
		log.Fatalf("failed to open mysql: %v", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{Addr: *redisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	defer rdb.Close()

	if err := seed(ctx, db, *initialStock); err != nil {
		log.Fatalf("failed to seed: %v", err)
	}

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	mysqlAdapter := storage.NewMySQLAdapter(db)
	redisAdapter := storage.NewRedisAdapter(rdb)
	ledger := service.NewLedgerService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, mysqlAdapter, quiet)
	payments := service.NewPaymentService(
		mysqlAdapter,
		redisAdapter,
		gateway.NewRazorpayClient(gateway.Config{KeySecret: secret}, quiet),
		ledger,
		publisher.NewLogPublisher(quiet),
		quiet,
	)

	// Every user has one paid, pending order for a single unit.
	requests := make([]service.VerifyRequest, *totalOrders)
	for i := range requests {
		userID := fmt.Sprintf("stress-user-%d", i)
		orderID := uuid.NewString()
		gatewayRef := "order_" + orderID[:8]
		now := time.Now().UTC()

		err := mysqlAdapter.CreateOrder(ctx, domain.Order{
			ID:             orderID,
			UserID:         userID,
			VendorID:       vendorID,
			Type:           domain.OrderTypeTakeaway,
			CollectorName:  userID,
			CollectorPhone: "0000000000",
			Lines: []domain.OrderLine{
				{ItemID: itemID, Kind: domain.KindRetail, Quantity: 1, UnitPrice: decimal.NewFromInt(10)},
			},
			Total:                decimal.NewFromInt(10),
			Status:               domain.OrderStatusPendingPayment,
			ReservationExpiresAt: now.Add(domain.ReservationWindow),
			CreatedAt:            now,
			UpdatedAt:            now,
		})
		if err != nil {
			log.Fatalf("failed to create order: %v", err)
		}
		if err := mysqlAdapter.SetGatewayOrderRef(ctx, orderID, gatewayRef); err != nil {
			log.Fatalf("failed to link gateway ref: %v", err)
		}

		paymentRef := "pay_" + orderID[:8]
		requests[i] = service.VerifyRequest{
			OrderID:           orderID,
			GatewayOrderRef:   gatewayRef,
			GatewayPaymentRef: paymentRef,
			Signature:         gateway.Sign(secret, gatewayRef, paymentRef),
		}
	}

	// Counters
	var successCount, oversoldCount, errorCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for _, req := range requests {
		wg.Add(1)
		go func(req service.VerifyRequest) {
			defer wg.Done()

			_, err := payments.VerifyAndSettle(ctx, req)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrStockConflict):
				oversoldCount.Add(1)
			default:
				errorCount.Add(1)
				log.Printf("order %s: %v", req.OrderID, err)
			}
		}(req)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := int(successCount.Load())
	oversold := int(oversoldCount.Load())
	wantSuccess := min(*initialStock, *totalOrders)

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", *initialStock)
	fmt.Printf("Total Orders:     %d\n", *totalOrders)
	fmt.Printf("Settled:          %d\n", success)
	fmt.Printf("Oversold:         %d\n", oversold)
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == wantSuccess && oversold == *totalOrders-wantSuccess {
		fmt.Printf("PASS: exactly %d orders settled, %d refused\n", success, oversold)
	} else {
		fmt.Printf("FAIL: expected %d settled/%d refused, got %d/%d\n",
			wantSuccess, *totalOrders-wantSuccess, success, oversold)
	}

	var finalStock int
	if err := db.QueryRowContext(ctx,
		`SELECT quantity FROM retail_inventory WHERE vendor_id = ? AND item_id = ?`, vendorID, itemID,
	).Scan(&finalStock); err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}
	fmt.Printf("Final Stock:      %d\n", finalStock)

	if finalStock == *initialStock-wantSuccess {
		fmt.Println("PASS: stock matches settled orders")
	} else {
		fmt.Printf("FAIL: expected stock %d, got %d\n", *initialStock-wantSuccess, finalStock)
	}
}

// seed resets the stress vendor to a single retail item with the given stock
// and drops the orders of previous runs.
func seed(ctx context.Context, db *sql.DB, stock int) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE oi FROM order_items oi JOIN orders o ON o.id = oi.order_id WHERE o.vendor_id = ?`, []any{vendorID}},
		{`DELETE p FROM payments p JOIN orders o ON o.id = p.order_id WHERE o.vendor_id = ?`, []any{vendorID}},
		{`DELETE FROM user_orders WHERE order_id IN (SELECT id FROM orders WHERE vendor_id = ?)`, []any{vendorID}},
		{`DELETE FROM vendor_active_orders WHERE vendor_id = ?`, []any{vendorID}},
		{`DELETE FROM orders WHERE vendor_id = ?`, []any{vendorID}},
		{`DELETE e FROM inventory_report_entries e JOIN inventory_reports r ON r.id = e.report_id WHERE r.vendor_id = ?`, []any{vendorID}},
		{`DELETE FROM inventory_reports WHERE vendor_id = ?`, []any{vendorID}},
		{`INSERT IGNORE INTO universities (id, name) VALUES (?, 'Stress University')`, []any{uniID}},
		{`INSERT IGNORE INTO vendors (id, full_name, uni_id) VALUES (?, 'Stress Vendor', ?)`, []any{vendorID, uniID}},
		{`INSERT IGNORE INTO items (id, kind, uni_id, name, price) VALUES (?, 'Retail', ?, 'Stress Item', 10)`, []any{itemID, uniID}},
		{`INSERT INTO retail_inventory (vendor_id, item_id, quantity) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`, []any{vendorID, itemID, stock}},
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s.query, s.args...); err != nil {
			return fmt.Errorf("%s: %w", s.query, err)
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
