// Package config loads service configuration from the environment and an
// optional app.env file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/joao-fontenele/orderflow-core/internal/domain"
	"github.com/joao-fontenele/orderflow-core/internal/ledger"
)

// Config holds every setting used by the binaries. Each binary reads only the
// fields it needs.
type Config struct {
	ServiceName    string `mapstructure:"SERVICE_NAME"`
	ServiceVersion string `mapstructure:"SERVICE_VERSION"`
	Port           string `mapstructure:"PORT"`
	LogLevel       string `mapstructure:"LOG_LEVEL"`

	PostgresURL    string `mapstructure:"POSTGRES_URL"`
	MigrationsPath string `mapstructure:"MIGRATIONS_PATH"`
	KafkaBrokers   string `mapstructure:"KAFKA_BROKERS"`
	RedisAddr      string `mapstructure:"REDIS_ADDR"`
	OTLPEndpoint   string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	EmailServiceURL string `mapstructure:"EMAIL_SERVICE_URL"`
	ShopServiceURL  string `mapstructure:"SHOP_SERVICE_URL"`
	EdgeSecret      string `mapstructure:"EDGE_SECRET"`
	NotifyTransport string `mapstructure:"NOTIFY_TRANSPORT"`

	PaymentFeeRate      string        `mapstructure:"PAYMENT_FEE_RATE"`
	PaymentFixedFee     string        `mapstructure:"PAYMENT_FIXED_FEE"`
	RefundFeeRate       string        `mapstructure:"REFUND_FEE_RATE"`
	RefundFeeEnabled    bool          `mapstructure:"REFUND_FEE_ENABLED"`
	SupportedCurrencies string        `mapstructure:"SUPPORTED_CURRENCIES"`
	PaymentMethods      string        `mapstructure:"PAYMENT_METHODS"`
	MaxInterestRate     string        `mapstructure:"MAX_INTEREST_RATE"`
	IdempotencyTTL      time.Duration `mapstructure:"IDEMPOTENCY_TTL"`

	ReturnWindowDays int    `mapstructure:"RETURN_WINDOW_DAYS"`
	Carriers         string `mapstructure:"CARRIERS"`
	DeliveryDays     int    `mapstructure:"DELIVERY_DAYS"`

	ShippingCost      string `mapstructure:"SHIPPING_COST"`
	TaxRate           string `mapstructure:"TAX_RATE"`
	DiscountPolicy    string `mapstructure:"DISCOUNT_POLICY"`
	MaxLineQuantity   int    `mapstructure:"MAX_LINE_QUANTITY"`
	LowStockThreshold int    `mapstructure:"LOW_STOCK_THRESHOLD"`

	ShutdownTimeout time.Duration `mapstructure:"SHUTDOWN_TIMEOUT"`
}

var defaults = map[string]any{
	"SERVICE_NAME":                "shop",
	"SERVICE_VERSION":             "0.1.0",
	"PORT":                        "8081",
	"LOG_LEVEL":                   "info",
	"POSTGRES_URL":                "",
	"MIGRATIONS_PATH":             "file://migrations",
	"KAFKA_BROKERS":               "",
	"REDIS_ADDR":                  "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "localhost:4317",
	"EMAIL_SERVICE_URL":           "",
	"SHOP_SERVICE_URL":            "",
	"EDGE_SECRET":                 "",
	"NOTIFY_TRANSPORT":            "queue",
	"PAYMENT_FEE_RATE":            "2.9",
	"PAYMENT_FIXED_FEE":           "0.30",
	"REFUND_FEE_RATE":             "1",
	"REFUND_FEE_ENABLED":          true,
	"SUPPORTED_CURRENCIES":        "USD,EUR,GBP",
	"PAYMENT_METHODS":             "card,paypal,bank_transfer",
	"MAX_INTEREST_RATE":           "100",
	"IDEMPOTENCY_TTL":             24 * time.Hour,
	"RETURN_WINDOW_DAYS":          30,
	"CARRIERS":                    "ups,usps,fedex,dhl",
	"DELIVERY_DAYS":               7,
	"SHIPPING_COST":               "5.00",
	"TAX_RATE":                    "10",
	"DISCOUNT_POLICY":             string(domain.DiscountAdditive),
	"MAX_LINE_QUANTITY":           100,
	"LOW_STOCK_THRESHOLD":         10,
	"SHUTDOWN_TIMEOUT":            10 * time.Second,
}

// Load reads app.env from path when present, then lets environment variables
// override it. serviceName and port seed the per-binary defaults.
func Load(path, serviceName, port string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetDefault("SERVICE_NAME", serviceName)
	v.SetDefault("PORT", port)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	for key, s := range map[string]string{
		"PAYMENT_FEE_RATE":  c.PaymentFeeRate,
		"REFUND_FEE_RATE":   c.RefundFeeRate,
		"MAX_INTEREST_RATE": c.MaxInterestRate,
		"TAX_RATE":          c.TaxRate,
	} {
		rate, err := decimal.NewFromString(s)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if rate.IsNegative() || rate.GreaterThan(ledger.MaxRate) {
			return fmt.Errorf("%s: %s is outside 0..%s", key, rate, ledger.MaxRate)
		}
	}
	for key, s := range map[string]string{
		"PAYMENT_FIXED_FEE": c.PaymentFixedFee,
		"SHIPPING_COST":     c.ShippingCost,
	} {
		if _, err := ledger.Parse(s); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if _, err := domain.ParseDiscountPolicy(c.DiscountPolicy); err != nil {
		return fmt.Errorf("DISCOUNT_POLICY: %w", err)
	}
	if c.ReturnWindowDays < 0 || c.MaxLineQuantity <= 0 || c.LowStockThreshold < 0 || c.DeliveryDays < 0 {
		return errors.New("RETURN_WINDOW_DAYS, MAX_LINE_QUANTITY, LOW_STOCK_THRESHOLD and DELIVERY_DAYS must not be negative")
	}
	return nil
}

// Rate parses one of the validated percentage settings.
func Rate(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// Amount parses one of the validated money settings.
func Amount(s string) ledger.Money {
	return ledger.MustParse(s)
}

// Logger returns the JSON logger every binary writes to stdout. Unknown
// levels fall back to info.
func (c *Config) Logger() *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

func (c *Config) Brokers() []string {
	return splitCSV(c.KafkaBrokers)
}

func (c *Config) CarrierList() []string {
	return splitCSV(strings.ToLower(c.Carriers))
}

func (c *Config) CurrencyList() []string {
	return splitCSV(strings.ToUpper(c.SupportedCurrencies))
}

func (c *Config) PaymentMethodList() []string {
	return splitCSV(strings.ToLower(c.PaymentMethods))
}

func (c *Config) ReturnWindow() time.Duration {
	return time.Duration(c.ReturnWindowDays) * 24 * time.Hour
}

func (c *Config) DeliveryEstimate() time.Duration {
	return time.Duration(c.DeliveryDays) * 24 * time.Hour
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
