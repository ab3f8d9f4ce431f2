package internal

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/pledge/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Market.LiquidationThresholdBps != 8000 {
		t.Errorf("threshold = %d, want 8000", cfg.Market.LiquidationThresholdBps)
	}
	if cfg.Market.AuctionDuration != 24*time.Hour {
		t.Errorf("auction duration = %s, want 24h", cfg.Market.AuctionDuration)
	}
	if cfg.Oracle.DefaultValue != 1_000_000_000 {
		t.Errorf("oracle default = %d", cfg.Oracle.DefaultValue)
	}
}

func TestMarketConfig_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MarketConfig)
	}{
		{"zero threshold", func(c *MarketConfig) { c.LiquidationThresholdBps = 0 }},
		{"threshold over 100%", func(c *MarketConfig) { c.LiquidationThresholdBps = 10001 }},
		{"sub-second auction", func(c *MarketConfig) { c.AuctionDuration = time.Millisecond }},
		{"fee over 100%", func(c *MarketConfig) { c.FeeRateBps = 20000 }},
		{"zero min amount", func(c *MarketConfig) { c.Policy.MinLoanAmount = 0 }},
		{"max below min amount", func(c *MarketConfig) { c.Policy.MinLoanAmount = 10; c.Policy.MaxLoanAmount = 5 }},
		{"max below min duration", func(c *MarketConfig) { c.Policy.MinDuration = time.Hour; c.Policy.MaxDuration = time.Minute }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(&cfg.Market)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestProtocolConfig_RequiresBothParties(t *testing.T) {
	cfg := ProtocolConfig{Authority: "authority"}
	if err := cfg.Validate(); err == nil {
		t.Error("authority without treasury should fail")
	}
	cfg = ProtocolConfig{Treasury: "treasury"}
	if err := cfg.Validate(); err == nil {
		t.Error("treasury without authority should fail")
	}
	cfg = ProtocolConfig{}
	if err := cfg.Validate(); err != nil || cfg.AutoInitialize() {
		t.Errorf("empty protocol: err=%v auto=%v", err, cfg.AutoInitialize())
	}
	cfg = ProtocolConfig{Authority: "a", Treasury: "t"}
	if err := cfg.Validate(); err != nil || !cfg.AutoInitialize() {
		t.Errorf("full protocol: err=%v auto=%v", err, cfg.AutoInitialize())
	}
}

func TestOracleConfig_Bounds(t *testing.T) {
	cfg := OracleConfig{MinValue: 10, MaxValue: 5}
	if err := cfg.Validate(); err == nil {
		t.Error("max below min should fail")
	}
	cfg = OracleConfig{MinValue: 10}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unbounded max should pass: %v", err)
	}
}

func TestRateLimitConfig(t *testing.T) {
	cfg := RateLimitConfig{}
	if cfg.Enabled() {
		t.Error("zero rate should disable limiting")
	}
	cfg = RateLimitConfig{RequestsPerMinute: -1}
	if err := cfg.Validate(); err == nil {
		t.Error("negative rate should fail")
	}
}

func TestConfig_ParseYAML(t *testing.T) {
	data := []byte(`
app:
  log_level: debug
  http:
    port: 9000
sqlite:
  path: /tmp/pledge.db
market:
  auction_duration: 2h
  policy:
    max_loan_amount: 5000
    max_duration: 720h
oracle:
  values:
    nft-1: 42
  cache_ttl: 1m
`)
	cfg := NewDefaultConfig()
	if err := pkgconfig.Parse(data, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %s", cfg.App.LogLevel)
	}
	if cfg.Market.AuctionDuration != 2*time.Hour {
		t.Errorf("auction duration = %s", cfg.Market.AuctionDuration)
	}
	if cfg.Market.LiquidationThresholdBps != 8000 {
		t.Errorf("threshold default lost: %d", cfg.Market.LiquidationThresholdBps)
	}
	p := cfg.Market.Policy.Policy()
	if p.MaxLoanAmount != 5000 || p.MaxDuration != 720*time.Hour || p.MinLoanAmount != 1 {
		t.Errorf("policy = %+v", p)
	}
	src := cfg.Oracle.Source()
	if src.Values["nft-1"] != 42 || src.CacheTTL != time.Minute {
		t.Errorf("oracle = %+v", src)
	}
}
