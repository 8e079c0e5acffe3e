// Package config loads lottery.conf, applies environment overrides and
// validates the result. Configuration errors are fatal at startup; nothing
// here is reloaded at runtime.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// DefaultPaths are probed in order when no --config flag is given.
var DefaultPaths = []string{"lottery.conf", "/app/lottery.conf"}

// BlockchainConfig holds node connection and transaction parameters.
type BlockchainConfig struct {
	RPCURL          string  `json:"rpc_url" validate:"required,url"`
	ChainID         int64   `json:"chain_id" validate:"required,gt=0"`
	ContractAddress string  `json:"contract_address" validate:"required,eth_addr"`
	OperatorAddress string  `json:"operator_address" validate:"omitempty,eth_addr"`
	GasPrice        uint64  `json:"gas_price"` // gwei; 0 means use the node suggestion
	GasMultiplier   float64 `json:"gas_multiplier" validate:"gte=1"`
}

// ServerConfig holds the HTTP/WebSocket bind parameters.
type ServerConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port" validate:"gt=0,lte=65535"`
	MonitoringPort int      `json:"monitoring_port" validate:"gte=0,lte=65535"`
	StaticDir      string   `json:"static_dir"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// OperatorConfig tunes the passive operator.
type OperatorConfig struct {
	Enabled          bool   `json:"enabled"`
	TxTimeoutSeconds uint64 `json:"tx_timeout_seconds" validate:"gt=0"`
}

// EventManagerConfig tunes the watcher loops and store capacities.
type EventManagerConfig struct {
	ContractConfigIntervalSec       uint64 `json:"contract_config_interval_sec" validate:"gt=0"`
	RoundAndParticipantsIntervalSec uint64 `json:"round_and_participants_interval_sec" validate:"gt=0"`
	StartBlockOffset                uint64 `json:"start_block_offset"`
	LiveFeedMaxEntries              int    `json:"live_feed_max_entries" validate:"gt=0"`
	RoundHistoryMax                 int    `json:"round_history_max" validate:"gt=0"`
	EventPollIntervalMs             uint64 `json:"event_poll_interval_ms" validate:"gt=0"`
	EmptyPollIntervalMs             uint64 `json:"empty_poll_interval_ms" validate:"gt=0"`
}

// Config is the full application configuration.
type Config struct {
	Blockchain   BlockchainConfig   `json:"blockchain"`
	Server       ServerConfig       `json:"server"`
	Operator     OperatorConfig     `json:"operator"`
	EventManager EventManagerConfig `json:"event_manager"`
}

// Default returns a Config with every tunable at its documented default.
// The blockchain section has no defaults and must come from file or env.
func Default() *Config {
	return &Config{
		Blockchain: BlockchainConfig{
			GasMultiplier: 1.15,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			MonitoringPort: 8081,
			StaticDir:      "web",
		},
		Operator: OperatorConfig{
			Enabled:          true,
			TxTimeoutSeconds: 180,
		},
		EventManager: EventManagerConfig{
			ContractConfigIntervalSec:       10,
			RoundAndParticipantsIntervalSec: 2,
			StartBlockOffset:                500,
			LiveFeedMaxEntries:              1000,
			RoundHistoryMax:                 100,
			EventPollIntervalMs:             200,
			EmptyPollIntervalMs:             1000,
		},
	}
}

// Load reads the configuration from path (or the first default path that
// exists when path is empty), applies environment overrides and validates.
func Load(path string) (*Config, error) {
	cfg := Default()
	resolved, explicit := path, path != ""
	if !explicit {
		for _, p := range DefaultPaths {
			if _, err := os.Stat(p); err == nil {
				resolved = p
				break
			}
		}
	}
	if resolved != "" {
		b, err := os.ReadFile(filepath.Clean(resolved))
		if err != nil {
			if explicit || !os.IsNotExist(err) {
				return nil, errors.Wrapf(err, "could not read config file %s", resolved)
			}
		} else {
			if err := json.Unmarshal(b, cfg); err != nil {
				return nil, errors.Wrapf(err, "could not parse config file %s", resolved)
			}
			log.WithField("path", resolved).Info("Loaded configuration file")
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct tags and cross-field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}
	return nil
}

// ContractAddr returns the parsed contract address.
func (c *Config) ContractAddr() common.Address {
	return common.HexToAddress(c.Blockchain.ContractAddress)
}

// OperatorAddr returns the expected operator address, nil when unset.
func (c *Config) OperatorAddr() *common.Address {
	if c.Blockchain.OperatorAddress == "" {
		return nil
	}
	a := common.HexToAddress(c.Blockchain.OperatorAddress)
	return &a
}

// applyEnv overrides config fields from BLOCKCHAIN_*, SERVER_* and APP_*
// environment variables. Variable names map to lowercase keys within their
// section; APP_* covers the operator and event_manager sections.
func (c *Config) applyEnv() error {
	overrides := []struct {
		env   string
		apply func(string) error
	}{
		{"BLOCKCHAIN_RPC_URL", func(v string) error { c.Blockchain.RPCURL = v; return nil }},
		{"BLOCKCHAIN_CHAIN_ID", func(v string) error { return parseInt64(v, &c.Blockchain.ChainID) }},
		{"BLOCKCHAIN_CONTRACT_ADDRESS", func(v string) error { c.Blockchain.ContractAddress = v; return nil }},
		{"BLOCKCHAIN_OPERATOR_ADDRESS", func(v string) error { c.Blockchain.OperatorAddress = v; return nil }},
		{"BLOCKCHAIN_GAS_PRICE", func(v string) error { return parseUint64(v, &c.Blockchain.GasPrice) }},
		{"BLOCKCHAIN_GAS_MULTIPLIER", func(v string) error { return parseFloat64(v, &c.Blockchain.GasMultiplier) }},
		{"SERVER_HOST", func(v string) error { c.Server.Host = v; return nil }},
		{"SERVER_PORT", func(v string) error { return parseInt(v, &c.Server.Port) }},
		{"SERVER_MONITORING_PORT", func(v string) error { return parseInt(v, &c.Server.MonitoringPort) }},
		{"SERVER_STATIC_DIR", func(v string) error { c.Server.StaticDir = v; return nil }},
		{"APP_OPERATOR_ENABLED", func(v string) error { return parseBool(v, &c.Operator.Enabled) }},
		{"APP_TX_TIMEOUT_SECONDS", func(v string) error { return parseUint64(v, &c.Operator.TxTimeoutSeconds) }},
		{"APP_CONTRACT_CONFIG_INTERVAL_SEC", func(v string) error { return parseUint64(v, &c.EventManager.ContractConfigIntervalSec) }},
		{"APP_ROUND_AND_PARTICIPANTS_INTERVAL_SEC", func(v string) error { return parseUint64(v, &c.EventManager.RoundAndParticipantsIntervalSec) }},
		{"APP_START_BLOCK_OFFSET", func(v string) error { return parseUint64(v, &c.EventManager.StartBlockOffset) }},
		{"APP_LIVE_FEED_MAX_ENTRIES", func(v string) error { return parseInt(v, &c.EventManager.LiveFeedMaxEntries) }},
		{"APP_ROUND_HISTORY_MAX", func(v string) error { return parseInt(v, &c.EventManager.RoundHistoryMax) }},
		{"APP_EVENT_POLL_INTERVAL_MS", func(v string) error { return parseUint64(v, &c.EventManager.EventPollIntervalMs) }},
		{"APP_EMPTY_POLL_INTERVAL_MS", func(v string) error { return parseUint64(v, &c.EventManager.EmptyPollIntervalMs) }},
	}
	for _, o := range overrides {
		v, ok := os.LookupEnv(o.env)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := o.apply(v); err != nil {
			return errors.Wrapf(err, "invalid value for %s", o.env)
		}
	}
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseInt64(v string, dst *int64) error {
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseUint64(v string, dst *uint64) error {
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat64(v string, dst *float64) error {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}
