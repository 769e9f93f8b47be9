package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"marketplace-settlement/internal/kernel"
	milestones "marketplace-settlement/internal/milestones/domain"
)

const sampleYAML = `
pricing:
  tax_rate: "0.08"
  shipping_fee: 20
  allowed_terms: [3, 6, 12]
  currency: BRL
inventory:
  reservation_ttl: 10m
  sweep_interval: 30s
retry:
  attempts: 7
milestones:
  default_plan:
    - name: delivery
      percentage: 30
    - name: installation
      percentage: 70
      due_in: 72h
      installer_id: inst-1
reporting:
  commission_rate: "0.12"
notify:
  webhook_url: http://hooks.local/settlement
  token: secret
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settlement.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLOverDefaults(t *testing.T) {
	cfg, err := Load(writeFile(t, sampleYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Pricing.TaxRate.Equal(decimal.RequireFromString("0.08")) || !cfg.Pricing.ShippingFee.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("pricing: %+v", cfg.Pricing)
	}
	if !cfg.Pricing.InstallmentFeeRate.Equal(decimal.RequireFromString("0.30")) {
		t.Fatalf("default fee rate lost: %s", cfg.Pricing.InstallmentFeeRate)
	}
	if cfg.Inventory.ReservationTTL != 10*time.Minute || cfg.Inventory.SweepInterval != 30*time.Second || cfg.Inventory.SweepBatch != 100 {
		t.Fatalf("inventory: %+v", cfg.Inventory)
	}
	policy := cfg.RetryPolicy()
	if policy.Attempts != 7 || policy.BaseDelay <= 0 {
		t.Fatalf("retry policy: %+v", policy)
	}
	plan := cfg.DefaultPlan()
	if len(plan) != 2 || plan[1].DueIn != 72*time.Hour || plan[1].InstallerID != "inst-1" || !plan[0].Percentage.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("plan: %+v", plan)
	}
	if !cfg.Reporting.CommissionRate.Equal(decimal.RequireFromString("0.12")) {
		t.Fatalf("commission: %s", cfg.Reporting.CommissionRate)
	}
	pc := cfg.PricingConfig()
	if len(pc.AllowedTerms) != 3 || pc.AllowedTerms[2] != 12 {
		t.Fatalf("pricing config terms: %v", pc.AllowedTerms)
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DefaultPlan() != nil {
		t.Fatalf("expected no configured plan")
	}
	if cfg.Inventory.ReservationTTL != 15*time.Minute {
		t.Fatalf("ttl: %s", cfg.Inventory.ReservationTTL)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"COMMISSION_RATE":    "0.05",
		"RESERVATION_TTL":    "5m",
		"NOTIFY_WEBHOOK_URL": "http://override",
		"MP_MOCK_MODE":       "true",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	cfg := Default()
	if err := cfg.ApplyEnv(lookup); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if !cfg.Reporting.CommissionRate.Equal(decimal.RequireFromString("0.05")) || cfg.Inventory.ReservationTTL != 5*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Notify.WebhookURL != "http://override" || !cfg.Payments.MockMode {
		t.Fatalf("string overrides not applied: %+v", cfg.Notify)
	}

	env["SWEEP_INTERVAL"] = "soon"
	env["PRICING_TAX_RATE"] = "abc"
	err := cfg.ApplyEnv(lookup)
	if err == nil || !strings.Contains(err.Error(), "SWEEP_INTERVAL") || !strings.Contains(err.Error(), "PRICING_TAX_RATE") {
		t.Fatalf("expected both env errors, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"tax above one", func(c *Config) { c.Pricing.TaxRate = decimal.NewFromInt(2) }},
		{"negative shipping", func(c *Config) { c.Pricing.ShippingFee = decimal.NewFromInt(-1) }},
		{"term below two", func(c *Config) { c.Pricing.AllowedTerms = []int{1} }},
		{"zero ttl", func(c *Config) { c.Inventory.ReservationTTL = 0 }},
		{"commission", func(c *Config) { c.Reporting.CommissionRate = decimal.RequireFromString("-0.1") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	cfg := Default()
	cfg.Milestones.DefaultPlan = []milestones.Plan{{Name: "a", Percentage: decimal.NewFromInt(30)}, {Name: "b", Percentage: decimal.NewFromInt(60)}}
	if err := cfg.Validate(); !errors.Is(err, kernel.ErrPercentagesDoNotSum100) {
		t.Fatalf("expected percentage error, got %v", err)
	}
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Payments.AccessToken = "APP_USR-123"
	cfg.Notify.Token = "t"
	red := cfg.Redacted()
	if red.Payments.AccessToken != "***" || red.Notify.Token != "***" || red.Catalog.Token != "" {
		t.Fatalf("unexpected redaction: %+v", red)
	}
	if cfg.Payments.AccessToken != "APP_USR-123" {
		t.Fatalf("redaction mutated original")
	}
	out, err := red.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(out), "APP_USR") {
		t.Fatalf("secret leaked: %s", out)
	}
}
