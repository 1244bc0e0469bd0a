package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/car-sharing/internal/adapter/handler"
	"github.com/rl1809/car-sharing/internal/adapter/metrics"
	"github.com/rl1809/car-sharing/internal/adapter/notify"
	"github.com/rl1809/car-sharing/internal/adapter/payment"
	"github.com/rl1809/car-sharing/internal/adapter/storage"
	"github.com/rl1809/car-sharing/internal/config"
	"github.com/rl1809/car-sharing/internal/core/service"
	"github.com/rl1809/car-sharing/internal/port"
)

const shutdownTimeout = 10 * time.Second

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, closeRepo, err := openRepository(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("storage unavailable", "err", err)
		os.Exit(1)
	}
	defer closeRepo()

	locker, closeLocker, err := openLocker(ctx, cfg.Storage, log)
	if err != nil {
		log.Error("redis unavailable", "err", err)
		os.Exit(1)
	}
	defer closeLocker()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics := metrics.NewPrometheus(reg)

	var notifier port.Notifier
	if len(cfg.KafkaBrokers) > 0 {
		kafkaNotifier := notify.NewKafkaNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kafkaNotifier.Close()
		notifier = kafkaNotifier
		log.Info("publishing notifications to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		notifier = notify.NewLogNotifier(log)
	}

	opts := []service.Option{service.WithLogger(log), service.WithMetrics(promMetrics)}

	dispatcher := service.NewDispatcher(notifier, cfg.NotifyQueueSize, opts...)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(cfg.NotifyWorkers)
	}()
	log.Info("started notification workers", "workers", cfg.NotifyWorkers)

	provider := payment.NewStripeAdapter(payment.StripeConfig{
		SecretKey: cfg.StripeSecretKey,
		Currency:  cfg.Currency,
		Timeout:   cfg.ProviderTimeout,
	})

	carService := service.NewCarService(repo)
	rentalService := service.NewRentalService(repo, service.NewInventoryLedger(), dispatcher, opts...)
	paymentService := service.NewPaymentService(repo, provider, locker, dispatcher, service.PaymentConfig{
		BaseURL: cfg.PublicBaseURL,
		LockTTL: cfg.PaymentLockTTL,
	}, opts...)

	// gRPC
	grpcServer := grpc.NewServer(grpc.ForceServerCodec(handler.JSONCodec{}))
	handler.NewGRPCHandler(rentalService, paymentService, log).Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("failed to listen", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	go func() {
		log.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Error("gRPC server error", "err", err)
		}
	}()

	// HTTP
	httpHandler := handler.NewHTTPHandler(carService, rentalService, paymentService, log)
	mux := http.NewServeMux()
	mux.Handle("/", httpHandler.Routes())
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Error("HTTP server error", "err", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown", "err", err)
	}
	log.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Info("gRPC server stopped")

	// Deliver what is already queued.
	dispatcher.Close()
	wg.Wait()
	log.Info("notification workers stopped")
}

func openRepository(ctx context.Context, cfg config.Storage, log *slog.Logger) (port.Repository, func(), error) {
	if cfg.MySQLDSN == "" {
		log.Warn("MYSQL_DSN not set, using in-memory store")
		return storage.NewMemoryAdapter(), func() {}, nil
	}

	db, err := storage.OpenMySQL(cfg.MySQLDSN)
	if err != nil {
		return nil, nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to mysql")

	if err := storage.Migrate(db); err != nil {
		db.Close()
		return nil, nil, err
	}
	return storage.NewMySQLAdapter(db), func() { db.Close() }, nil
}

func openLocker(ctx context.Context, cfg config.Storage, log *slog.Logger) (port.Locker, func(), error) {
	if cfg.RedisAddr == "" {
		log.Warn("REDIS_ADDR not set, payment locks are local to this process")
		return storage.NewMemoryLocker(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, err
	}
	log.Info("connected to redis")
	return storage.NewRedisLocker(rdb, log), func() { rdb.Close() }, nil
}
