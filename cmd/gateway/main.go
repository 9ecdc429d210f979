package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joao-fontenele/orderflow-core/internal/config"
	"github.com/joao-fontenele/orderflow-core/internal/gateway"
	"github.com/joao-fontenele/orderflow-core/internal/telemetry"
)

func main() {
	cfg, err := config.Load(".", "gateway", "8080")
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger := cfg.Logger()

	ctx := context.Background()

	shutdownTracer, err := telemetry.InitTracerProvider(ctx, cfg.ServiceName, cfg.ServiceVersion, cfg.OTLPEndpoint)
	if err != nil {
		logger.Error("failed to initialize tracer", "error", err)
		os.Exit(1)
	}
	defer func() { _ = shutdownTracer(context.Background()) }()

	if cfg.ShopServiceURL == "" {
		logger.Error("SHOP_SERVICE_URL is required")
		os.Exit(1)
	}

	if cfg.EdgeSecret == "" {
		logger.Warn("EDGE_SECRET not set, identity headers will not be forwarded")
	}
	shopProxy := gateway.NewServiceProxy(cfg.ShopServiceURL, telemetry.NewHTTPClient(10*time.Second),
		gateway.WithIdentitySecret(cfg.EdgeSecret))
	handler := gateway.NewHandler(shopProxy, logger)

	mux := http.NewServeMux()
	handler.Register(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      telemetry.NewServerHandler(mux, cfg.ServiceName),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting gateway service", "port", cfg.Port, "shop", cfg.ShopServiceURL)
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
		os.Exit(1)
	}
}
