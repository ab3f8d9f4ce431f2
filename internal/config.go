package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/pledge/internal/market"
	"github.com/starford/pledge/internal/oracle"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	RateLimit RateLimitConfig   `yaml:"rate_limit"`
	Protocol  ProtocolConfig    `yaml:"protocol"`
	Market    MarketConfig      `yaml:"market"`
	Oracle    OracleConfig      `yaml:"oracle"`
	Metrics   MetricsConfig     `yaml:"metrics"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	if err := c.Auth.Validate(); err != nil {
		return err
	}
	if err := c.RateLimit.Validate(); err != nil {
		return err
	}
	if err := c.Protocol.Validate(); err != nil {
		return err
	}
	if err := c.Market.Validate(); err != nil {
		return err
	}
	return c.Oracle.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level    `yaml:"log_level"`
	LogFile  LogFileConfig `yaml:"log_file"`
	HTTP     HTTPConfig    `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.LogFile.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogFileConfig enables a rotating log file next to stdout. An empty Path
// keeps logging on stdout only.
type LogFileConfig struct {
	Path       string `yaml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Validate validates the log file configuration.
func (c *LogFileConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
		validation.Field(&c.MaxAgeDays, validation.Min(0)),
	)
}

// HTTPConfig holds HTTP server configuration. TrustProxyHeaders takes the
// client address from X-Real-IP/X-Forwarded-For; enable it only behind a
// proxy that overwrites them.
type HTTPConfig struct {
	Port              int  `yaml:"port"`
	TrustProxyHeaders bool `yaml:"trust_proxy_headers"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// RateLimitConfig throttles API clients. Zero RequestsPerMinute disables it.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// Validate validates the rate limit configuration.
func (c *RateLimitConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.RequestsPerMinute, validation.Min(0.0)),
		validation.Field(&c.Burst, validation.Min(0)),
	)
}

// Enabled reports whether requests are throttled.
func (c *RateLimitConfig) Enabled() bool {
	return c.RequestsPerMinute > 0
}

// ProtocolConfig names the registry parties. When both are set, serve
// initializes the registry on first start.
type ProtocolConfig struct {
	Authority string `yaml:"authority"`
	Treasury  string `yaml:"treasury"`
}

// Validate validates the protocol configuration.
func (c *ProtocolConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Authority, validation.When(c.Treasury != "", validation.Required)),
		validation.Field(&c.Treasury, validation.When(c.Authority != "", validation.Required)),
	)
}

// AutoInitialize reports whether the registry should be created at startup.
func (c *ProtocolConfig) AutoInitialize() bool {
	return c.Authority != "" && c.Treasury != ""
}

// MarketConfig holds the market constants and the hot-reloadable loan policy.
type MarketConfig struct {
	LiquidationThresholdBps uint16        `yaml:"liquidation_threshold_bps"`
	AuctionDuration         time.Duration `yaml:"auction_duration"`
	FeeRateBps              uint16        `yaml:"fee_rate_bps"`
	Policy                  PolicyConfig  `yaml:"policy"`
}

// Validate validates the market configuration.
func (c *MarketConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.LiquidationThresholdBps, validation.Required, validation.Max(uint16(10000))),
		validation.Field(&c.AuctionDuration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.FeeRateBps, validation.Max(uint16(10000))),
	); err != nil {
		return err
	}
	return c.Policy.Validate()
}

// Params converts the constants into engine parameters.
func (c *MarketConfig) Params() market.Params {
	return market.Params{
		LiquidationThresholdBps: c.LiquidationThresholdBps,
		AuctionDuration:         c.AuctionDuration,
		FeeRateBps:              c.FeeRateBps,
	}
}

// PolicyConfig bounds new loan terms. Zero maximums are unbounded.
type PolicyConfig struct {
	MinLoanAmount      uint64        `yaml:"min_loan_amount"`
	MaxLoanAmount      uint64        `yaml:"max_loan_amount"`
	MinDuration        time.Duration `yaml:"min_duration"`
	MaxDuration        time.Duration `yaml:"max_duration"`
	MaxInterestRateBps uint16        `yaml:"max_interest_rate_bps"`
}

// Validate validates the policy configuration.
func (c *PolicyConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.MinLoanAmount, validation.Required),
		validation.Field(&c.MinDuration, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxDuration, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if c.MaxLoanAmount > 0 && c.MaxLoanAmount < c.MinLoanAmount {
		return fmt.Errorf("policy: max_loan_amount %d is below min_loan_amount %d", c.MaxLoanAmount, c.MinLoanAmount)
	}
	if c.MaxDuration > 0 && c.MaxDuration < c.MinDuration {
		return fmt.Errorf("policy: max_duration %s is below min_duration %s", c.MaxDuration, c.MinDuration)
	}
	return nil
}

// Policy converts the configuration into an engine policy.
func (c *PolicyConfig) Policy() market.Policy {
	return market.Policy{
		MinLoanAmount:      c.MinLoanAmount,
		MaxLoanAmount:      c.MaxLoanAmount,
		MinDuration:        c.MinDuration,
		MaxDuration:        c.MaxDuration,
		MaxInterestRateBps: c.MaxInterestRateBps,
	}
}

// OracleConfig configures the collateral appraiser used when callers omit a
// valuation.
type OracleConfig struct {
	DefaultValue uint64            `yaml:"default_value"`
	Values       map[string]uint64 `yaml:"values"`
	MinValue     uint64            `yaml:"min_value"`
	MaxValue     uint64            `yaml:"max_value"`
	CacheTTL     time.Duration     `yaml:"cache_ttl"`
	CacheSize    int               `yaml:"cache_size"`
}

// Validate validates the oracle configuration.
func (c *OracleConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.CacheTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.CacheSize, validation.Min(0)),
	); err != nil {
		return err
	}
	if c.MaxValue > 0 && c.MaxValue < c.MinValue {
		return fmt.Errorf("oracle: max_value %d is below min_value %d", c.MaxValue, c.MinValue)
	}
	return nil
}

// Source converts the configuration into oracle settings.
func (c *OracleConfig) Source() oracle.Config {
	return oracle.Config{
		DefaultValue: c.DefaultValue,
		Values:       c.Values,
		MinValue:     c.MinValue,
		MaxValue:     c.MaxValue,
		CacheTTL:     c.CacheTTL,
		CacheSize:    c.CacheSize,
	}
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	params := market.DefaultParams()
	policy := market.DefaultPolicy()
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			LogFile: LogFileConfig{
				MaxSizeMB:  100,
				MaxBackups: 3,
				MaxAgeDays: 28,
			},
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		SQLite: SQLiteConfig{
			Path: "./pledge.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Market: MarketConfig{
			LiquidationThresholdBps: params.LiquidationThresholdBps,
			AuctionDuration:         params.AuctionDuration,
			FeeRateBps:              params.FeeRateBps,
			Policy: PolicyConfig{
				MinLoanAmount: policy.MinLoanAmount,
				MinDuration:   policy.MinDuration,
			},
		},
		Oracle: OracleConfig{
			DefaultValue: oracle.DefaultValue,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}
