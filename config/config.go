package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full maker configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Tokens  []TokenConfig `yaml:"tokens"`
	Goal    []GoalConfig  `yaml:"goal"`
	Chain   ChainConfig   `yaml:"chain"`
	Feed    FeedConfig    `yaml:"feed"`
	Venue   VenueConfig   `yaml:"venue"`
	Storage StorageConfig `yaml:"storage"`
	Log     LogConfig     `yaml:"log"`
}

// EngineConfig controls the pricing and scheduling behaviour.
type EngineConfig struct {
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"` // background + run cadence
	ExpirationSeconds   int      `yaml:"expiration_seconds"`    // signed order lifetime
	RelativeChangeLimit float64  `yaml:"relative_change_limit"` // drift vs initial snapshot
	AverageChangeLimit  float64  `yaml:"average_change_limit"`  // drift vs rolling average
	FractionTolerance   float64  `yaml:"fraction_tolerance"`    // |Σ fractions − 1| bound
	PriceModifier       float64  `yaml:"price_modifier"`        // multiplier on reference prices
	ContinuousUpdate    *bool    `yaml:"continuous_update"`     // live reprice + breakers (default on)
	Blacklist           []string `yaml:"blacklist"`             // requester addresses to ignore
}

// TokenConfig declares one known token.
type TokenConfig struct {
	Address  string `yaml:"address"`
	Symbol   string `yaml:"symbol"`
	Decimals int    `yaml:"decimals"`
}

// GoalConfig is one target allocation entry. WETH must not appear here; its
// exposure belongs to the ETH bucket.
type GoalConfig struct {
	Address  string  `yaml:"address"`
	Fraction float64 `yaml:"fraction"`
}

// ChainConfig points at the chain RPC and the relevant well-known addresses.
type ChainConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	ETHAddress  string `yaml:"eth_address"`  // sentinel for the native balance
	WETHAddress string `yaml:"weth_address"`
	RightsToken string `yaml:"rights_token"` // staked trading-rights token
}

// FeedConfig is the USD price source.
type FeedConfig struct {
	BaseURL string `yaml:"base_url"`
}

// VenueConfig is the swap venue's websocket endpoint.
type VenueConfig struct {
	URL string `yaml:"url"`
}

// StorageConfig controls the audit database.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // SQLite file path, or ":memory:"; empty disables auditing
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load reads the YAML config and the .env file if present. Secrets
// (PRIVATE_KEY, RPC_URL) and log settings come from the environment and
// override the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// PollInterval returns the polling cadence as a time.Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Engine.PollIntervalSeconds) * time.Second
}

// ExpirationWindow returns the signed-order lifetime as a time.Duration.
func (c *Config) ExpirationWindow() time.Duration {
	return time.Duration(c.Engine.ExpirationSeconds) * time.Second
}

// ContinuousUpdate reports whether live repricing is enabled (default true).
func (c *Config) ContinuousUpdate() bool {
	return c.Engine.ContinuousUpdate == nil || *c.Engine.ContinuousUpdate
}

// GoalFractions returns the configured allocation keyed by address.
func (c *Config) GoalFractions() map[common.Address]float64 {
	goal := make(map[common.Address]float64, len(c.Goal))
	for _, g := range c.Goal {
		goal[common.HexToAddress(g.Address)] = g.Fraction
	}
	return goal
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("VENUE_URL"); v != "" {
		cfg.Venue.URL = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Engine.PollIntervalSeconds <= 0 {
		cfg.Engine.PollIntervalSeconds = 30
	}
	if cfg.Engine.ExpirationSeconds <= 0 {
		cfg.Engine.ExpirationSeconds = 300
	}
	if cfg.Engine.RelativeChangeLimit <= 0 {
		cfg.Engine.RelativeChangeLimit = 0.20
	}
	if cfg.Engine.AverageChangeLimit <= 0 {
		cfg.Engine.AverageChangeLimit = 0.10
	}
	if cfg.Engine.FractionTolerance <= 0 {
		cfg.Engine.FractionTolerance = 0.001
	}
	if cfg.Engine.PriceModifier <= 0 {
		cfg.Engine.PriceModifier = 1.0
	}
	if cfg.Feed.BaseURL == "" {
		cfg.Feed.BaseURL = "https://min-api.cryptocompare.com"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	if len(c.Tokens) == 0 {
		return fmt.Errorf("no tokens configured")
	}
	if c.Chain.ETHAddress == "" || c.Chain.WETHAddress == "" {
		return fmt.Errorf("chain.eth_address and chain.weth_address are required")
	}
	for _, t := range c.Tokens {
		if !common.IsHexAddress(t.Address) {
			return fmt.Errorf("token %q: invalid address %q", t.Symbol, t.Address)
		}
		if t.Decimals < 0 || t.Decimals > 36 {
			return fmt.Errorf("token %q: invalid decimals %d", t.Symbol, t.Decimals)
		}
	}
	for _, g := range c.Goal {
		if !common.IsHexAddress(g.Address) {
			return fmt.Errorf("goal entry: invalid address %q", g.Address)
		}
		if g.Fraction < 0 || g.Fraction > 1 {
			return fmt.Errorf("goal entry %s: fraction %f outside [0,1]", g.Address, g.Fraction)
		}
	}
	return nil
}
