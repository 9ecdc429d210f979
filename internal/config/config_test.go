package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "shop", "8081")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.ServiceName != "shop" || cfg.Port != "8081" {
		t.Errorf("unexpected service defaults: %s %s", cfg.ServiceName, cfg.Port)
	}
	if cfg.ReturnWindow() != 30*24*time.Hour {
		t.Errorf("expected 30 day return window, got %s", cfg.ReturnWindow())
	}
	if !slices.Equal(cfg.CurrencyList(), []string{"USD", "EUR", "GBP"}) {
		t.Errorf("unexpected currencies: %v", cfg.CurrencyList())
	}
	if Amount(cfg.PaymentFixedFee) != 30 {
		t.Errorf("expected fixed fee 30, got %d", Amount(cfg.PaymentFixedFee))
	}
	if !cfg.RefundFeeEnabled {
		t.Error("expected refund fee enabled by default")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	content := "PORT=9000\nCARRIERS=UPS, DHL\nKAFKA_BROKERS=a:9092,b:9092\n"
	if err := os.WriteFile(filepath.Join(dir, "app.env"), []byte(content), 0o600); err != nil {
		t.Fatalf("write app.env: %v", err)
	}
	t.Setenv("PORT", "9100")

	cfg, err := Load(dir, "shop", "8081")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("expected env to win, got %s", cfg.Port)
	}
	if !slices.Equal(cfg.CarrierList(), []string{"ups", "dhl"}) {
		t.Errorf("unexpected carriers: %v", cfg.CarrierList())
	}
	if !slices.Equal(cfg.Brokers(), []string{"a:9092", "b:9092"}) {
		t.Errorf("unexpected brokers: %v", cfg.Brokers())
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	tests := map[string]string{
		"TAX_RATE":          "ten",
		"PAYMENT_FEE_RATE":  "-1",
		"REFUND_FEE_RATE":   "100.01",
		"MAX_INTEREST_RATE": "250",
		"SHIPPING_COST":     "5.001",
		"DISCOUNT_POLICY":   "stacked",
		"MAX_LINE_QUANTITY": "0",
	}

	for key, value := range tests {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(t.TempDir(), "shop", "8081"); err == nil {
				t.Errorf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestConfig_Logger(t *testing.T) {
	ctx := context.Background()

	debug := (&Config{LogLevel: "debug"}).Logger()
	if !debug.Enabled(ctx, slog.LevelDebug) {
		t.Error("expected debug enabled")
	}

	fallback := (&Config{LogLevel: "chatty"}).Logger()
	if fallback.Enabled(ctx, slog.LevelDebug) || !fallback.Enabled(ctx, slog.LevelInfo) {
		t.Error("expected unknown level to fall back to info")
	}
}
