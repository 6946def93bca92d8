package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/campus-order/internal/adapter/gateway"
	"github.com/rl1809/campus-order/internal/adapter/handler"
	"github.com/rl1809/campus-order/internal/adapter/publisher"
	"github.com/rl1809/campus-order/internal/adapter/storage"
	"github.com/rl1809/campus-order/internal/config"
	"github.com/rl1809/campus-order/internal/core/service"
	"github.com/rl1809/campus-order/internal/logger"
	"github.com/rl1809/campus-order/internal/port"
	"github.com/rl1809/campus-order/internal/shutdown"
	"github.com/rl1809/campus-order/internal/telemetry"
)

type eventPublisher interface {
	port.EventPublisher
	io.Closer
}

func main() {
	configPath := flag.String("config", "", "optional config file (.env, .yaml, .json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
	})

	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(cfg.TracingEnabled, cfg.ServiceName, os.Stdout)
	if err != nil {
		log.Error("failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQLDSN)
	if err != nil {
		log.Error("failed to open mysql", slog.Any("error", err))
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.MySQLMaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQLMaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQLConnLifetime)

	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to ping mysql", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("connected to mysql")

	if cfg.RunMigrations {
		if err := storage.Migrate(db); err != nil {
			log.Error("failed to migrate schema", slog.Any("error", err))
			os.Exit(1)
		}
		log.Info("schema up to date")
	}

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		PoolSize: cfg.RedisPoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("failed to connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	log.Info("connected to redis")

	// Initialize adapters
	redisAdapter := storage.NewRedisAdapter(rdb)
	mysqlAdapter := storage.NewMySQLAdapter(db)

	paymentGateway := gateway.NewRazorpayClient(gateway.Config{
		BaseURL:       cfg.GatewayBaseURL,
		KeyID:         cfg.GatewayKeyID,
		KeySecret:     cfg.GatewayKeySecret,
		Timeout:       cfg.GatewayTimeout,
		MaxTries:      cfg.GatewayMaxTries,
		RetryInterval: 200 * time.Millisecond,
	}, log)

	var events eventPublisher
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		events = publisher.NewKafkaPublisher(publisher.KafkaConfig{
			Brokers:      brokers,
			Topic:        cfg.KafkaTopic,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 5 * time.Second,
			MaxAttempts:  5,
		}, log)
		log.Info("publishing order events to kafka", slog.Any("brokers", brokers), slog.String("topic", cfg.KafkaTopic))
	} else {
		events = publisher.NewLogPublisher(log)
		log.Warn("no kafka brokers configured, order events are only logged")
	}

	// Initialize services
	cartService := service.NewCartService(redisAdapter, mysqlAdapter, mysqlAdapter, log)
	orderService := service.NewOrderService(mysqlAdapter, redisAdapter, mysqlAdapter, mysqlAdapter, paymentGateway, cfg.Currency, log)
	ledgerService := service.NewLedgerService(mysqlAdapter, mysqlAdapter, mysqlAdapter, redisAdapter, mysqlAdapter, log)
	paymentService := service.NewPaymentService(mysqlAdapter, redisAdapter, paymentGateway, ledgerService, events, log)

	// Start expiry sweeper
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweepLoop(ctx, cfg.ExpirySweepInterval, orderService, log)
	}()

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(cartService, orderService, paymentService, log).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to listen", slog.String("addr", cfg.GRPCAddr), slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		log.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", slog.Any("error", err))
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(cartService, orderService, paymentService, ledgerService, log)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", slog.Any("error", err))
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown", slog.Any("error", err))
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	wg.Wait()
	log.Info("sweeper stopped")

	if err := events.Close(); err != nil {
		log.Error("failed to close publisher", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("failed to flush traces", slog.Any("error", err))
	}
	rdb.Close()
	db.Close()
	log.Info("connections closed")
}

// sweepLoop fails unpaid orders whose reservation window has lapsed, once per
// interval until ctx is done.
func sweepLoop(ctx context.Context, interval time.Duration, orders *service.OrderService, log *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, interval)
			n, err := orders.ExpireStale(runCtx)
			cancel()

			if err != nil {
				log.Error("expiry sweep failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				log.Info("expired unpaid orders", slog.Int("count", n))
			}
		}
	}
}
