package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentinel-trading/sentinel/internal/creator"
	"github.com/sentinel-trading/sentinel/internal/engine"
	"github.com/sentinel-trading/sentinel/internal/mltree"
	"github.com/sentinel-trading/sentinel/internal/riskapi"
	"github.com/sentinel-trading/sentinel/internal/scorer"
	"github.com/sentinel-trading/sentinel/internal/solana"
)

// Config is the root configuration structure for sentinel.
type Config struct {
	General  GeneralConfig          `yaml:"general"`
	RPC      solana.RPCConfig       `yaml:"rpc"`
	Monitor  solana.WSMonitorConfig `yaml:"monitor"`
	Postgres PostgresConfig         `yaml:"postgres"`
	RiskAPI  riskapi.Config         `yaml:"risk_api"`
	Creator  creator.TracerConfig   `yaml:"creator"`
	Scorer   scorer.Config          `yaml:"scorer"`
	Entry    mltree.EntryConfig     `yaml:"entry_classifier"`
	Exit     mltree.ExitConfig      `yaml:"exit_classifier"`
	Engine   engine.Config          `yaml:"engine"`
	Metrics  MetricsConfig          `yaml:"metrics"`
}

type GeneralConfig struct {
	InstanceID  string `yaml:"instance_id"`
	Environment string `yaml:"environment"` // production|staging|development
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"` // json|console
	AuditBuffer int    `yaml:"audit_buffer"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// Load reads and parses a YAML configuration file. Environment
// variables in the file are expanded before parsing, so secrets like
// the Postgres DSN can stay out of the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the full default configuration, used when no file is
// given and as the base the loaded file overrides.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.General.InstanceID == "" {
		cfg.General.InstanceID = "sentinel-1"
	}
	if cfg.General.Environment == "" {
		cfg.General.Environment = "development"
	}
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.General.LogFormat == "" {
		cfg.General.LogFormat = "json"
	}
	if cfg.General.AuditBuffer == 0 {
		cfg.General.AuditBuffer = 10_000
	}

	if cfg.RPC.Endpoint == "" {
		cfg.RPC = solana.DefaultRPCConfig()
	}
	if cfg.Monitor.WSEndpoint == "" {
		cfg.Monitor = solana.DefaultWSMonitorConfig()
	}
	if cfg.RiskAPI.BaseURL == "" {
		cfg.RiskAPI = riskapi.DefaultConfig()
	}
	if cfg.Creator.MaxHops == 0 {
		cfg.Creator = creator.DefaultTracerConfig()
	}
	if cfg.Scorer.BaseScore == 0 {
		cfg.Scorer = scorer.DefaultConfig()
	}
	if cfg.Entry.MinBlockConfidence == 0 {
		cfg.Entry = mltree.DefaultEntryConfig()
	}
	if cfg.Exit.MultiplierFloor == 0 {
		cfg.Exit = mltree.DefaultExitConfig()
	}
	if cfg.Engine.MintTimeout == 0 {
		cfg.Engine = engine.DefaultConfig()
	}
	if cfg.Metrics.PrometheusPort == 0 {
		cfg.Metrics.PrometheusPort = 9090
	}
}

// Validate rejects configurations that would silently disable the
// engine's safety behavior.
func (c *Config) Validate() error {
	if c.Scorer.MinScore < 0 || c.Scorer.MinScore > 100 {
		return fmt.Errorf("config: scorer min_score %d outside 0..100", c.Scorer.MinScore)
	}
	if c.Entry.MinBlockConfidence < 0 || c.Entry.MinBlockConfidence > 1 {
		return fmt.Errorf("config: entry min_block_confidence %.2f outside 0..1", c.Entry.MinBlockConfidence)
	}
	if c.Exit.MultiplierFloor < 1 {
		return fmt.Errorf("config: exit multiplier_floor %.2f below 1.0 would advise realizing losses", c.Exit.MultiplierFloor)
	}
	if c.Exit.MinSellConfidence < 0 || c.Exit.MinSellConfidence > 1 {
		return fmt.Errorf("config: exit min_sell_confidence %.2f outside 0..1", c.Exit.MinSellConfidence)
	}
	return nil
}
