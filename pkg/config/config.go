package config

// Package config provides a reusable loader for the chain's configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.2.0

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/jmzkChain/jmzk-sub002/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.2.0"

// Config represents the unified configuration for a jmzkd node. It mirrors
// the structure of the YAML files under cmd/config and the ChainConfig
// knobs core.DefaultChainConfig seeds a fresh TDB with.
type Config struct {
	Chain struct {
		ID                  string `mapstructure:"id" json:"id"`
		JmzkLinkExpiredSecs int    `mapstructure:"jmzk_link_expired_secs" json:"jmzk_link_expired_secs"`
		TxNetUsageLimit     uint64 `mapstructure:"tx_net_usage_limit" json:"tx_net_usage_limit"`
		LoadtestMode        bool   `mapstructure:"loadtest_mode" json:"loadtest_mode"`
		ChargeFreeMode      bool   `mapstructure:"charge_free_mode" json:"charge_free_mode"`
	} `mapstructure:"chain" json:"chain"`

	Charge struct {
		NetworkBaseFactor uint64 `mapstructure:"network_base_factor" json:"network_base_factor"`
		CPUBaseFactor     uint64 `mapstructure:"cpu_base_factor" json:"cpu_base_factor"`
		StorageBaseFactor uint64 `mapstructure:"storage_base_factor" json:"storage_base_factor"`
		GlobalFactor      uint64 `mapstructure:"global_factor" json:"global_factor"`
		SigSize           uint64 `mapstructure:"sig_size" json:"sig_size"`
	} `mapstructure:"charge" json:"charge"`

	Storage struct {
		SnapshotPath string `mapstructure:"snapshot_path" json:"snapshot_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`

	LinkWatcher struct {
		BindAddr  string `mapstructure:"bind_addr" json:"bind_addr"`
		TimeoutMS int    `mapstructure:"timeout_ms" json:"timeout_ms"`
	} `mapstructure:"link_watcher" json:"link_watcher"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // environment variables override keys of the same name

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the JMZKD_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("JMZKD_ENV", ""))
}
