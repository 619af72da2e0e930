package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/pushchain/gas-monitor/gasClient/telemetry"
)

const (
	configSubdir   = "config"
	configFileName = "pgasmon_config.json"

	// EnvPrefix prefixes environment overrides, e.g. PGASMON_QUERY_SERVER_PORT
	// or PGASMON_CHAIN_CONFIGS_ETHEREUM_WS_URL.
	EnvPrefix = "PGASMON"
)

//go:embed default_config.json
var defaultConfigJSON []byte

func validateConfig(cfg *Config) error {
	// Validate log level
	if cfg.LogLevel < 0 || cfg.LogLevel > 5 {
		return fmt.Errorf("log level must be between 0 and 5")
	}

	// Validate log format
	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return fmt.Errorf("log format must be 'json' or 'console'")
	}

	// Set defaults for query server
	if cfg.QueryServerPort == 0 {
		cfg.QueryServerPort = 8080
	}
	if cfg.QueryServerPort < 0 || cfg.QueryServerPort > 65535 {
		return fmt.Errorf("query server port must be between 1 and 65535")
	}

	if cfg.InitialMode == "" {
		cfg.InitialMode = telemetry.ModeLive.String()
	}
	if _, err := telemetry.ParseMode(cfg.InitialMode); err != nil {
		return fmt.Errorf("initial mode must be 'live' or 'simulation'")
	}

	// Set defaults for simulation input
	if cfg.Simulation.DefaultAmount == "" {
		cfg.Simulation.DefaultAmount = "0.5"
	}
	if cfg.Simulation.DefaultGasLimit == 0 {
		cfg.Simulation.DefaultGasLimit = 21000
	}

	// Initialize ChainConfigs if nil or empty
	if len(cfg.ChainConfigs) == 0 {
		var defaultCfg Config
		if err := json.Unmarshal(defaultConfigJSON, &defaultCfg); err == nil {
			cfg.ChainConfigs = defaultCfg.ChainConfigs
			if len(cfg.ChainOrder) == 0 {
				cfg.ChainOrder = defaultCfg.ChainOrder
			}
		} else {
			cfg.ChainConfigs = make(map[string]ChainSpecificConfig)
		}
	}

	for id, cc := range cfg.ChainConfigs {
		if cc.Family == "" {
			cc.Family = string(telemetry.FamilyEIP1559)
		}
		if !telemetry.FeeFamily(cc.Family).Valid() {
			return fmt.Errorf("chain %s: family must be 'eip1559' or 'gas_price'", id)
		}
		if cc.Name == "" {
			cc.Name = id
		}
		if cc.PriorityFeeMode == "" {
			cc.PriorityFeeMode = "fixed"
		}
		if cc.PriorityFeeMode != "fixed" && cc.PriorityFeeMode != "polled" {
			return fmt.Errorf("chain %s: priority fee mode must be 'fixed' or 'polled'", id)
		}
		if cc.PriorityFeeGwei < 0 {
			return fmt.Errorf("chain %s: priority fee must not be negative", id)
		}
		if cc.PriorityFeePollIntervalSeconds == 0 {
			cc.PriorityFeePollIntervalSeconds = 15
		}
		if cc.IsEnabled() && cc.WSURL == "" {
			return fmt.Errorf("chain %s: ws_url is required", id)
		}
		cfg.ChainConfigs[id] = cc
	}

	// Set defaults for price config
	if cfg.PriceConfig.Source == "" {
		cfg.PriceConfig.Source = "static"
	}
	if cfg.PriceConfig.Source != "uniswap_v3" && cfg.PriceConfig.Source != "static" {
		return fmt.Errorf("price source must be 'uniswap_v3' or 'static'")
	}
	if cfg.PriceConfig.RefreshIntervalSeconds == 0 {
		cfg.PriceConfig.RefreshIntervalSeconds = 30
	}
	if cfg.PriceConfig.StaticPrice == 0 {
		cfg.PriceConfig.StaticPrice = 2000
	}
	if cfg.PriceConfig.Source == "uniswap_v3" {
		if cfg.PriceConfig.RPCURL == "" {
			return fmt.Errorf("price config rpc_url is required for uniswap_v3")
		}
		if cfg.PriceConfig.PoolAddress == "" {
			cfg.PriceConfig.PoolAddress = "0x88e6A0c2dDD26FEEb64F039a2c41296FcB3f5640"
			cfg.PriceConfig.Token0Decimals = 6
			cfg.PriceConfig.Token1Decimals = 18
		}
	}

	// Set defaults for the sample archive
	if cfg.Database.RetentionSamples == 0 {
		cfg.Database.RetentionSamples = 100
	}
	if cfg.Database.CleanupIntervalSeconds == 0 {
		cfg.Database.CleanupIntervalSeconds = 60
	}

	return nil
}

// Validate applies defaults and checks the config.
func Validate(cfg *Config) error {
	return validateConfig(cfg)
}

// Path returns the config file location under basePath.
func Path(basePath string) string {
	return filepath.Join(basePath, configSubdir, configFileName)
}

// Save writes the given config to <basePath>/config/pgasmon_config.json.
func Save(cfg *Config, basePath string) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	configDir := filepath.Join(basePath, configSubdir)
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	configFile := Path(basePath)
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load reads the config from <basePath>/config/pgasmon_config.json on top
// of the embedded defaults, applies PGASMON_* environment overrides and
// validates the result. A missing file yields the defaults.
func Load(basePath string) (Config, error) {
	v, err := newViper()
	if err != nil {
		return Config{}, err
	}

	configFile := Path(basePath)
	if _, statErr := os.Stat(configFile); statErr == nil {
		v.SetConfigFile(filepath.Clean(configFile))
		if err := v.MergeInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if !os.IsNotExist(statErr) {
		return Config{}, fmt.Errorf("failed to read config file: %w", statErr)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.NodeHome == "" {
		cfg.NodeHome = basePath
	}
	if err := validateConfig(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadDefaultConfig loads the default configuration from embedded JSON
func LoadDefaultConfig() (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(defaultConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal default config: %w", err)
	}
	return &cfg, nil
}

// newViper returns a viper instance seeded with the embedded defaults and
// bound to the environment.
func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(defaultConfigJSON)); err != nil {
		return nil, fmt.Errorf("failed to read default config: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}
