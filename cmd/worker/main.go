package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/config"
	"github.com/joao-fontenele/orderflow-core/internal/messaging"
	"github.com/joao-fontenele/orderflow-core/internal/notify"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
	"github.com/joao-fontenele/orderflow-core/internal/worker"
)

const groupID = "notification-worker"

func main() {
	cfg, err := config.Load(".", "worker", "")
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := cfg.Logger()

	brokers := cfg.Brokers()
	if len(brokers) == 0 {
		logger.Error("KAFKA_BROKERS environment variable is required")
		os.Exit(1)
	}
	if cfg.EmailServiceURL == "" {
		logger.Error("EMAIL_SERVICE_URL environment variable is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	consumer := messaging.NewConsumer(brokers, notify.Topic, groupID, messaging.WithLogger(logger))
	defer func() { _ = consumer.Close() }()

	sender := notify.NewHTTPSender(cfg.EmailServiceURL, telemetry.NewHTTPClient(10*time.Second))
	handler := worker.NewNotificationHandler(sender, logger)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		logger.Info("shutting down")
		cancel()
	}()

	logger.Info("starting notification worker", "brokers", brokers, "topic", notify.Topic)

	if err := consumer.Consume(ctx, handler.Handle); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("consumer stopped")
			return
		}
		logger.Error("consumer error", "error", err)
		os.Exit(1)
	}
}
