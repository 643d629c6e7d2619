package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Listener ListenerConfig
	HTTP     HTTPConfig
	Prime    PrimeConfig
	Formance FormanceConfig
	Policy   Policy
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Path             string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	BusyTimeout      time.Duration
	CreateDummyUsers bool
}

// ListenerConfig holds transfer listener settings
type ListenerConfig struct {
	LookbackWindow  time.Duration
	PollingInterval time.Duration
	CleanupInterval time.Duration
}

// HTTPConfig holds the inbound/outbound HTTP boundary settings
type HTTPConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// PrimeConfig selects the Prime wallet payouts are sent from
type PrimeConfig struct {
	AccessKey     string
	Passphrase    string
	SigningKey    string
	PortfolioName string
	PayoutSymbol  string
}

// Enabled reports whether Prime credentials were supplied
func (c PrimeConfig) Enabled() bool {
	return c.AccessKey != "" && c.Passphrase != "" && c.SigningKey != ""
}

// FormanceConfig holds the connection settings of the optional ledger mirror
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// Enabled reports whether a Formance stack was configured
func (c FormanceConfig) Enabled() bool {
	return c.StackURL != "" && c.ClientID != "" && c.ClientSecret != ""
}

// Policy is the rate and capability table loaded from the policy file.
// Percentages are expressed out of 100.
type Policy struct {
	DefaultCurrency     string
	CurrencyScales      map[string]int32
	Commission          map[PayerType]decimal.Decimal
	TaxCategories       map[string]TaxCategory
	PayoutTaxCategories map[MemberType]string
	RoleTemplates       map[string]map[string]decimal.Decimal
	PercentageTolerance decimal.Decimal
	MinimumPayout       decimal.Decimal
	Approvals           map[string][]string
}

// TaxCategory is one row of the tax rate table
type TaxCategory struct {
	Kind      string          // "withholding", "consumption"
	Rate      decimal.Decimal // percentage, e.g. 10 for 10%
	Inclusive bool
}

// Scale returns the number of minor-unit digits for a currency
func (p Policy) Scale(currency string) int32 {
	if scale, ok := p.CurrencyScales[currency]; ok {
		return scale
	}
	return 2
}
