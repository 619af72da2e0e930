package config

import (
	"fmt"
	"sort"
)

type Config struct {
	// Log Config: level 0 = debug, 1 = info, etc.; format "json" or "console";
	// sampler keeps 1 in 5 log lines
	LogLevel   int    `json:"log_level" mapstructure:"log_level"`
	LogFormat  string `json:"log_format" mapstructure:"log_format"`
	LogSampler bool   `json:"log_sampler" mapstructure:"log_sampler"`

	// Home directory (default: ~/.pgasmon)
	NodeHome string `json:"node_home" mapstructure:"node_home"`

	// Port for HTTP query server (default: 8080)
	QueryServerPort int `json:"query_server_port" mapstructure:"query_server_port"`

	// "live" or "simulation" (default: live)
	InitialMode string           `json:"initial_mode" mapstructure:"initial_mode"`
	Simulation  SimulationConfig `json:"simulation" mapstructure:"simulation"`

	// Display order; enabled chains missing from the list follow sorted by id
	ChainOrder   []string                       `json:"chain_order" mapstructure:"chain_order"`
	ChainConfigs map[string]ChainSpecificConfig `json:"chain_configs" mapstructure:"chain_configs"`

	PriceConfig PriceConfig    `json:"price_config" mapstructure:"price_config"`
	Database    DatabaseConfig `json:"database" mapstructure:"database"`
}

// SimulationConfig holds the initial simulation input.
type SimulationConfig struct {
	// decimal text (default: "0.5")
	DefaultAmount string `json:"default_amount" mapstructure:"default_amount"`
	// gas units (default: 21000)
	DefaultGasLimit uint64 `json:"default_gas_limit" mapstructure:"default_gas_limit"`
}

// ChainSpecificConfig holds all chain-specific configuration in one place
type ChainSpecificConfig struct {
	Name   string `json:"name" mapstructure:"name"`
	Symbol string `json:"symbol" mapstructure:"symbol"`
	Color  string `json:"color" mapstructure:"color"`
	// "eip1559" or "gas_price"
	Family string `json:"family" mapstructure:"family"`

	// Websocket endpoint for new heads
	WSURL string `json:"ws_url" mapstructure:"ws_url"`
	// 0 skips chain ID verification
	ExpectedChainID int64 `json:"expected_chain_id,omitempty" mapstructure:"expected_chain_id"`

	// Priority fee for eip1559 chains; "fixed" uses PriorityFeeGwei, "polled"
	// asks the node every PriorityFeePollIntervalSeconds
	PriorityFeeGwei                float64 `json:"priority_fee_gwei" mapstructure:"priority_fee_gwei"`
	PriorityFeeMode                string  `json:"priority_fee_mode,omitempty" mapstructure:"priority_fee_mode"`
	PriorityFeePollIntervalSeconds int     `json:"priority_fee_poll_interval_seconds,omitempty" mapstructure:"priority_fee_poll_interval_seconds"`

	// Baseline base fee used to seed the chain before its first block
	SeedBaseFeeGwei *float64 `json:"seed_base_fee_gwei,omitempty" mapstructure:"seed_base_fee_gwei"`

	// default: true
	Enabled *bool `json:"enabled,omitempty" mapstructure:"enabled"`
}

// IsEnabled reports whether the chain is monitored.
func (c ChainSpecificConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PriceConfig configures the reference price source.
type PriceConfig struct {
	// "uniswap_v3" or "static"
	Source         string `json:"source" mapstructure:"source"`
	RPCURL         string `json:"rpc_url" mapstructure:"rpc_url"`
	PoolAddress    string `json:"pool_address" mapstructure:"pool_address"`
	Token0Decimals int    `json:"token0_decimals" mapstructure:"token0_decimals"`
	Token1Decimals int    `json:"token1_decimals" mapstructure:"token1_decimals"`
	// default: 30
	RefreshIntervalSeconds int `json:"refresh_interval_seconds" mapstructure:"refresh_interval_seconds"`
	// Static source base, also the startup price (default: 2000)
	StaticPrice float64 `json:"static_price" mapstructure:"static_price"`
	Jitter      float64 `json:"jitter" mapstructure:"jitter"`
}

// DatabaseConfig configures the sample archive.
type DatabaseConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	// default: <node_home>/data
	Dir string `json:"dir,omitempty" mapstructure:"dir"`
	// Samples kept per chain (default: 100)
	RetentionSamples int `json:"retention_samples" mapstructure:"retention_samples"`
	// default: 60
	CleanupIntervalSeconds int `json:"cleanup_interval_seconds" mapstructure:"cleanup_interval_seconds"`
}

// OrderedChainIDs returns the ids of enabled chains in display order.
func (c *Config) OrderedChainIDs() []string {
	seen := make(map[string]bool, len(c.ChainConfigs))
	out := make([]string, 0, len(c.ChainConfigs))
	for _, id := range c.ChainOrder {
		cc, ok := c.ChainConfigs[id]
		if !ok || seen[id] || !cc.IsEnabled() {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}

	rest := make([]string, 0)
	for id, cc := range c.ChainConfigs {
		if !seen[id] && cc.IsEnabled() {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}

// GetChainConfig returns the settings for one chain.
func (c *Config) GetChainConfig(chainID string) (ChainSpecificConfig, error) {
	if c.ChainConfigs == nil {
		return ChainSpecificConfig{}, fmt.Errorf("no chain configs found")
	}
	cc, ok := c.ChainConfigs[chainID]
	if !ok {
		return ChainSpecificConfig{}, fmt.Errorf("no config for chain %s", chainID)
	}
	return cc, nil
}
