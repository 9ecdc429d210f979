package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/joao-fontenele/orderflow-core/internal/auth"
	"github.com/joao-fontenele/orderflow-core/internal/cart"
	"github.com/joao-fontenele/orderflow-core/internal/config"
	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/idempotency"
	"github.com/joao-fontenele/orderflow-core/internal/inventory"
	"github.com/joao-fontenele/orderflow-core/internal/messaging"
	"github.com/joao-fontenele/orderflow-core/internal/notify"
	"github.com/joao-fontenele/orderflow-core/internal/orders"
	"github.com/joao-fontenele/orderflow-core/internal/payment"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

const eventsTopic = "shop.events"

type repositories struct {
	inventory inventory.Repository
	orders    orders.Repository
	payments  payment.Repository
	carts     cart.Repository
}

func main() {
	cfg, err := config.Load(".", "shop", "8081")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := cfg.Logger()

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to init tracer provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	metricsHandler, shutdownMeter, err := telemetry.InitMeterProvider(cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		logger.Error("failed to init meter provider", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownMeter(context.Background()) }()

	repos, db, err := openRepositories(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to set up storage", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	var events *messaging.Producer
	if brokers := cfg.Brokers(); len(brokers) > 0 {
		events = messaging.NewProducer(brokers, eventsTopic, cfg.ServiceName)
		defer func() { _ = events.Close() }()
		logger.Info("kafka producer initialized", "brokers", brokers, "topic", eventsTopic)
	}

	sender, closeSender := newSender(cfg, logger)
	defer closeSender()
	notifier := notify.NewNotifier(sender, logger)

	verifier := payment.NewAllowList(cfg.PaymentMethodList()...)

	inventorySvc := inventory.NewService(repos.inventory, logger,
		inventory.WithLowStockThreshold(cfg.LowStockThreshold),
	)

	var orderOpts []orders.Option
	if events != nil {
		orderOpts = append(orderOpts, orders.WithPublisher(events))
	}
	orderSvc := orders.NewService(repos.orders, inventorySvc, notifier, orders.Settings{
		Carriers:         cfg.CarrierList(),
		ReturnWindow:     cfg.ReturnWindow(),
		DeliveryEstimate: cfg.DeliveryEstimate(),
	}, logger, orderOpts...)

	var paymentOpts []payment.Option
	if events != nil {
		paymentOpts = append(paymentOpts, payment.WithPublisher(events))
	}
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer func() { _ = client.Close() }()
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		paymentOpts = append(paymentOpts, payment.WithGuard(idempotency.NewRedis(client, cfg.IdempotencyTTL)))
		logger.Info("redis idempotency guard enabled", "addr", cfg.RedisAddr)
	}
	paymentSvc := payment.NewService(repos.payments, orderSvc, verifier, payment.Settings{
		FeeRate:          config.Rate(cfg.PaymentFeeRate),
		FixedFee:         config.Amount(cfg.PaymentFixedFee),
		RefundFeeRate:    config.Rate(cfg.RefundFeeRate),
		RefundFeeEnabled: cfg.RefundFeeEnabled,
		Currencies:       cfg.CurrencyList(),
		MaxInterestRate:  config.Rate(cfg.MaxInterestRate),
	}, logger, paymentOpts...)

	policy, _ := domain.ParseDiscountPolicy(cfg.DiscountPolicy)
	cartSvc := cart.NewService(repos.carts, inventorySvc, orderSvc, verifier, cart.Settings{
		ShippingCost:    config.Amount(cfg.ShippingCost),
		TaxRate:         config.Rate(cfg.TaxRate),
		DiscountPolicy:  policy,
		MaxLineQuantity: cfg.MaxLineQuantity,
	}, logger)

	mux := http.NewServeMux()
	inventory.NewHandler(inventorySvc, logger).Register(mux)
	orders.NewHandler(orderSvc, logger).Register(mux)
	payment.NewHandler(paymentSvc, logger).Register(mux)
	cart.NewHandler(cartSvc, logger).Register(mux)
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewServerHandler(auth.Middleware(mux), cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting shop service", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// openRepositories uses Postgres when POSTGRES_URL is set and in-memory
// stores otherwise.
func openRepositories(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repositories, *sql.DB, error) {
	if cfg.PostgresURL == "" {
		logger.Warn("POSTGRES_URL not set, using in-memory storage")
		repo := orders.NewMemoryRepository()
		seq, err := orders.NewMemorySequence(ctx, repo.Orders)
		if err != nil {
			return repositories{}, nil, err
		}
		repo.IDs = seq
		return repositories{
			inventory: inventory.NewMemoryRepository(),
			orders:    repo,
			payments:  payment.NewMemoryRepository(),
			carts:     cart.NewMemoryRepository(),
		}, nil, nil
	}

	db, err := telemetry.ConnectPostgres(ctx, cfg.PostgresURL)
	if err != nil {
		return repositories{}, nil, err
	}
	return repositories{
		inventory: inventory.NewPostgresRepository(db),
		orders:    orders.NewPostgresRepository(db),
		payments:  payment.NewPostgresRepository(db),
		carts:     cart.NewPostgresRepository(db),
	}, db, nil
}

func newSender(cfg *config.Config, logger *slog.Logger) (notify.Sender, func()) {
	switch cfg.NotifyTransport {
	case "queue":
		if brokers := cfg.Brokers(); len(brokers) > 0 {
			producer := messaging.NewProducer(brokers, notify.Topic, cfg.ServiceName)
			return notify.NewQueueSender(producer), func() { _ = producer.Close() }
		}
		logger.Warn("KAFKA_BROKERS not set, notifications will only be logged")
	case "http":
		if cfg.EmailServiceURL != "" {
			return notify.NewHTTPSender(cfg.EmailServiceURL, telemetry.NewHTTPClient(10*time.Second)), func() {}
		}
		logger.Warn("EMAIL_SERVICE_URL not set, notifications will only be logged")
	}
	return notify.LogSender{Logger: logger}, func() {}
}
