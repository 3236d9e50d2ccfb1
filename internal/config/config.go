package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	Match MatchConfig `yaml:"match" mapstructure:"match"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MatchConfig configures the identity-resolution engine. The two thresholds
// are deliberately separate defaults: clustering within a batch (and merge
// detection) runs looser than linking a cluster to an existing person.
type MatchConfig struct {
	DedupThreshold float64            `yaml:"dedup_threshold" mapstructure:"dedup_threshold"`
	LinkThreshold  float64            `yaml:"link_threshold" mapstructure:"link_threshold"`
	Window         int                `yaml:"window" mapstructure:"window"`
	Weights        map[string]float64 `yaml:"weights" mapstructure:"weights"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REGISTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "registry.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("match.dedup_threshold", 0.7)
	v.SetDefault("match.link_threshold", 0.8)
	v.SetDefault("match.window", 4)
	v.SetDefault("match.weights.first_name", 3.0)
	v.SetDefault("match.weights.last_name", 2.0)
	v.SetDefault("match.weights.date_of_birth", 3.0)
	v.SetDefault("match.weights.sex", 3.0)
	v.SetDefault("match.weights.email", 1.0)
	v.SetDefault("match.weights.phone", 1.0)
	v.SetDefault("match.weights.city", 1.0)
	v.SetDefault("match.weights.country", 1.0)
	v.SetDefault("match.weights.postal_code", 1.0)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
