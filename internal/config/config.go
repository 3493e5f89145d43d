package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"

	amrerrors "github.com/objectfs/amrmeta/pkg/errors"
)

// DefaultRatioEpsilon is the tolerance used when rounding refinement ratios.
const DefaultRatioEpsilon = 1e-6

// Configuration represents the complete application configuration
type Configuration struct {
	Global      GlobalConfig      `yaml:"global" toml:"global"`
	Refinement  RefinementConfig  `yaml:"refinement" toml:"refinement"`
	Exchange    ExchangeConfig    `yaml:"exchange" toml:"exchange"`
	Distributed DistributedConfig `yaml:"distributed" toml:"distributed"`
	Monitoring  MonitoringConfig  `yaml:"monitoring" toml:"monitoring"`
}

// GlobalConfig represents global application settings
type GlobalConfig struct {
	LogLevel  string `yaml:"log_level" toml:"log_level"`
	LogFormat string `yaml:"log_format" toml:"log_format"`
}

// RefinementConfig controls refinement ratio derivation
type RefinementConfig struct {
	Epsilon float64 `yaml:"epsilon" toml:"epsilon"`
}

// ExchangeConfig bounds metadata buffers accepted from peers
type ExchangeConfig struct {
	MaxRecords int `yaml:"max_records" toml:"max_records"`
}

// DistributedConfig describes the in-process group used when no external
// controller is supplied
type DistributedConfig struct {
	Ranks int `yaml:"ranks" toml:"ranks"`
}

// MonitoringConfig represents monitoring settings
type MonitoringConfig struct {
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// MetricsConfig represents metrics settings
type MetricsConfig struct {
	Enabled      bool              `yaml:"enabled" toml:"enabled"`
	Namespace    string            `yaml:"namespace" toml:"namespace"`
	Port         int               `yaml:"port" toml:"port"`
	Path         string            `yaml:"path" toml:"path"`
	CustomLabels map[string]string `yaml:"custom_labels" toml:"custom_labels"`
}

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	return &Configuration{
		Global: GlobalConfig{
			LogLevel:  "INFO",
			LogFormat: "text",
		},
		Refinement: RefinementConfig{
			Epsilon: DefaultRatioEpsilon,
		},
		Exchange: ExchangeConfig{
			MaxRecords: 1 << 20,
		},
		Distributed: DistributedConfig{
			Ranks: 1,
		},
		Monitoring: MonitoringConfig{
			Metrics: MetricsConfig{
				Enabled:   true,
				Namespace: "amrmeta",
				Port:      0,
				Path:      "/metrics",
				CustomLabels: map[string]string{
					"service": "amrmeta",
				},
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by extension
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return amrerrors.NewError(amrerrors.ErrCodeConfigLoad, "failed to read config file").
			WithComponent("config").WithCause(err)
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return amrerrors.NewError(amrerrors.ErrCodeConfigLoad, "failed to parse TOML config").
				WithComponent("config").WithCause(err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, c); err != nil {
			return amrerrors.NewError(amrerrors.ErrCodeConfigLoad, "failed to parse YAML config").
				WithComponent("config").WithCause(err)
		}
	default:
		return amrerrors.NewError(amrerrors.ErrCodeConfigLoad,
			fmt.Sprintf("unsupported config file extension %q", filepath.Ext(filename))).
			WithComponent("config")
	}

	return nil
}

// LoadFromEnv loads configuration from environment variables
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("AMRMETA_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("AMRMETA_LOG_FORMAT"); val != "" {
		c.Global.LogFormat = val
	}
	if val := os.Getenv("AMRMETA_RATIO_EPSILON"); val != "" {
		if eps, err := strconv.ParseFloat(val, 64); err == nil {
			c.Refinement.Epsilon = eps
		}
	}
	if val := os.Getenv("AMRMETA_MAX_RECORDS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Exchange.MaxRecords = n
		}
	}
	if val := os.Getenv("AMRMETA_RANKS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Distributed.Ranks = n
		}
	}
	if val := os.Getenv("AMRMETA_METRICS_ENABLED"); val != "" {
		c.Monitoring.Metrics.Enabled = strings.ToLower(val) == "true"
	}
	if val := os.Getenv("AMRMETA_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return amrerrors.NewError(amrerrors.ErrCodeConfigValidation, fmt.Sprintf(format, args...)).
			WithComponent("config")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	logLevelValid := false
	for _, level := range validLogLevels {
		if strings.ToUpper(c.Global.LogLevel) == level {
			logLevelValid = true
			break
		}
	}
	if !logLevelValid {
		return invalid("invalid log_level: %s (must be one of: %s)",
			c.Global.LogLevel, strings.Join(validLogLevels, ", "))
	}

	switch strings.ToLower(c.Global.LogFormat) {
	case "", "text", "console", "json":
	default:
		return invalid("invalid log_format: %s (must be text or json)", c.Global.LogFormat)
	}

	if c.Refinement.Epsilon <= 0 || c.Refinement.Epsilon >= 0.5 {
		return invalid("refinement epsilon must be in (0, 0.5), got %g", c.Refinement.Epsilon)
	}

	if c.Exchange.MaxRecords <= 0 {
		return invalid("exchange max_records must be greater than 0")
	}

	if c.Distributed.Ranks <= 0 {
		return invalid("distributed ranks must be greater than 0")
	}

	if c.Monitoring.Metrics.Port < 0 || c.Monitoring.Metrics.Port > 65535 {
		return invalid("metrics port out of range: %d", c.Monitoring.Metrics.Port)
	}

	return nil
}
