package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	milestones "marketplace-settlement/internal/milestones/domain"
	"marketplace-settlement/internal/pricing"
	"marketplace-settlement/internal/retry"
)

// Config is the engine configuration loaded from YAML.
type Config struct {
	Pricing    PricingConfig    `yaml:"pricing"`
	Inventory  InventoryConfig  `yaml:"inventory"`
	Retry      RetryConfig      `yaml:"retry"`
	Milestones MilestonesConfig `yaml:"milestones"`
	Reporting  ReportingConfig  `yaml:"reporting"`
	Notify     NotifyConfig     `yaml:"notify"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Payments   PaymentsConfig   `yaml:"payments"`
	Outbox     OutboxConfig     `yaml:"outbox"`
}

// PricingConfig holds the price calculator inputs.
type PricingConfig struct {
	TaxRate               decimal.Decimal `yaml:"tax_rate"`
	ShippingFee           decimal.Decimal `yaml:"shipping_fee"`
	FreeShippingThreshold decimal.Decimal `yaml:"free_shipping_threshold"`
	InstallmentFeeRate    decimal.Decimal `yaml:"installment_fee_rate"`
	AllowedTerms          []int           `yaml:"allowed_terms"`
	Currency              string          `yaml:"currency"`
}

// InventoryConfig holds reservation timing.
type InventoryConfig struct {
	ReservationTTL time.Duration `yaml:"reservation_ttl"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	SweepBatch     int           `yaml:"sweep_batch"`
}

// RetryConfig holds the contention retry policy.
type RetryConfig struct {
	Attempts  int           `yaml:"attempts"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	Timeout   time.Duration `yaml:"timeout"`
}

// MilestonesConfig holds the plan used when checkout carries none.
type MilestonesConfig struct {
	DefaultPlan []milestones.Plan `yaml:"default_plan"`
}

// ReportingConfig holds vendor revenue settings.
type ReportingConfig struct {
	CommissionRate decimal.Decimal `yaml:"commission_rate"`
}

// NotifyConfig holds the notification webhook.
type NotifyConfig struct {
	WebhookURL   string        `yaml:"webhook_url"`
	Token        string        `yaml:"token"`
	DedupeWindow time.Duration `yaml:"dedupe_window"`
}

// CatalogConfig points at the catalog service. An empty base URL selects the
// in-memory demo catalog.
type CatalogConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
}

// PaymentsConfig holds gateway access.
type PaymentsConfig struct {
	AccessToken string `yaml:"access_token"`
	MockMode    bool   `yaml:"mock_mode"`
}

// OutboxConfig holds dispatcher timing.
type OutboxConfig struct {
	DispatchInterval time.Duration `yaml:"dispatch_interval"`
	Batch            int           `yaml:"batch"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := pricing.DefaultConfig()
	return Config{
		Pricing: PricingConfig{
			TaxRate:               p.TaxRate,
			ShippingFee:           p.ShippingFee,
			FreeShippingThreshold: p.FreeShippingThreshold,
			InstallmentFeeRate:    p.InstallmentFeeRate,
			AllowedTerms:          append([]int(nil), p.AllowedTerms...),
			Currency:              "USD",
		},
		Inventory: InventoryConfig{
			ReservationTTL: 15 * time.Minute,
			SweepInterval:  time.Minute,
			SweepBatch:     100,
		},
		Retry: RetryConfig{
			Attempts:  retry.DefaultPolicy.Attempts,
			BaseDelay: retry.DefaultPolicy.BaseDelay,
			MaxDelay:  retry.DefaultPolicy.MaxDelay,
			Timeout:   retry.DefaultPolicy.Timeout,
		},
		Reporting: ReportingConfig{CommissionRate: decimal.RequireFromString("0.10")},
		Outbox: OutboxConfig{
			DispatchInterval: time.Second,
			Batch:            50,
		},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	dec := func(key string, dst *decimal.Decimal) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := decimal.NewFromString(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	dec("PRICING_TAX_RATE", &c.Pricing.TaxRate)
	dec("PRICING_SHIPPING_FEE", &c.Pricing.ShippingFee)
	dec("PRICING_INSTALLMENT_FEE_RATE", &c.Pricing.InstallmentFeeRate)
	str("CURRENCY", &c.Pricing.Currency)
	dur("RESERVATION_TTL", &c.Inventory.ReservationTTL)
	dur("SWEEP_INTERVAL", &c.Inventory.SweepInterval)
	dec("COMMISSION_RATE", &c.Reporting.CommissionRate)
	str("NOTIFY_WEBHOOK_URL", &c.Notify.WebhookURL)
	str("NOTIFY_WEBHOOK_TOKEN", &c.Notify.Token)
	str("CATALOG_BASE_URL", &c.Catalog.BaseURL)
	str("CATALOG_TOKEN", &c.Catalog.Token)
	str("MP_ACCESS_TOKEN", &c.Payments.AccessToken)
	boolean("MP_MOCK_MODE", &c.Payments.MockMode)
	dur("OUTBOX_DISPATCH_INTERVAL", &c.Outbox.DispatchInterval)
	return errors.Join(errs...)
}

// Validate checks the configuration for values the engine cannot run with.
func (c Config) Validate() error {
	var errs []error
	one := decimal.NewFromInt(1)
	if c.Pricing.TaxRate.IsNegative() || c.Pricing.TaxRate.GreaterThan(one) {
		errs = append(errs, fmt.Errorf("config: pricing.tax_rate %s outside [0,1]", c.Pricing.TaxRate))
	}
	if c.Pricing.ShippingFee.IsNegative() || c.Pricing.FreeShippingThreshold.IsNegative() {
		errs = append(errs, errors.New("config: pricing shipping values must not be negative"))
	}
	if c.Pricing.InstallmentFeeRate.IsNegative() {
		errs = append(errs, fmt.Errorf("config: pricing.installment_fee_rate %s is negative", c.Pricing.InstallmentFeeRate))
	}
	for _, term := range c.Pricing.AllowedTerms {
		if term < 2 {
			errs = append(errs, fmt.Errorf("config: pricing.allowed_terms: term %d below 2", term))
		}
	}
	if c.Inventory.ReservationTTL <= 0 {
		errs = append(errs, errors.New("config: inventory.reservation_ttl must be positive"))
	}
	if c.Inventory.SweepInterval <= 0 {
		errs = append(errs, errors.New("config: inventory.sweep_interval must be positive"))
	}
	if c.Retry.Attempts < 0 {
		errs = append(errs, errors.New("config: retry.attempts must not be negative"))
	}
	if c.Reporting.CommissionRate.IsNegative() || c.Reporting.CommissionRate.GreaterThan(one) {
		errs = append(errs, fmt.Errorf("config: reporting.commission_rate %s outside [0,1]", c.Reporting.CommissionRate))
	}
	if len(c.Milestones.DefaultPlan) > 0 {
		if err := milestones.ValidatePlan(c.Milestones.DefaultPlan); err != nil {
			errs = append(errs, fmt.Errorf("config: milestones.default_plan: %w", err))
		}
	}
	return errors.Join(errs...)
}

// PricingConfig converts to the calculator configuration.
func (c Config) PricingConfig() pricing.Config {
	return pricing.Config{
		TaxRate:               c.Pricing.TaxRate,
		ShippingFee:           c.Pricing.ShippingFee,
		FreeShippingThreshold: c.Pricing.FreeShippingThreshold,
		InstallmentFeeRate:    c.Pricing.InstallmentFeeRate,
		AllowedTerms:          append([]int(nil), c.Pricing.AllowedTerms...),
	}
}

// RetryPolicy converts to a retry policy; zero fields take the defaults.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		Attempts:  c.Retry.Attempts,
		BaseDelay: c.Retry.BaseDelay,
		MaxDelay:  c.Retry.MaxDelay,
		Timeout:   c.Retry.Timeout,
	}.Normalize()
}

// DefaultPlan returns the configured default milestone plan, or nil when the
// built-in single milestone should be used.
func (c Config) DefaultPlan() []milestones.Plan {
	if len(c.Milestones.DefaultPlan) == 0 {
		return nil
	}
	return append([]milestones.Plan(nil), c.Milestones.DefaultPlan...)
}

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "***"
	}
	c.Notify.Token = mask(c.Notify.Token)
	c.Catalog.Token = mask(c.Catalog.Token)
	c.Payments.AccessToken = mask(c.Payments.AccessToken)
	return c
}

// Marshal renders the config as YAML.
func (c Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
