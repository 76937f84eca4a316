// Package config loads application configuration from config.yaml and
// ANCHOR_-prefixed environment variables, and initializes the global
// zap logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Overpass  OverpassConfig  `yaml:"overpass" mapstructure:"overpass"`
	Correct   CorrectConfig   `yaml:"correct" mapstructure:"correct"`
	Buildings BuildingsConfig `yaml:"buildings" mapstructure:"buildings"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the PostGIS backend for the buildings layer.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// NominatimConfig holds POI search service settings.
type NominatimConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// OverpassConfig holds entrance query service settings.
type OverpassConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// CorrectConfig configures the correction pipeline.
type CorrectConfig struct {
	Throttle time.Duration `yaml:"throttle" mapstructure:"throttle"`
	RadiusM  int           `yaml:"radius_m" mapstructure:"radius_m"`
}

// BuildingsConfig configures the buildings loader.
type BuildingsConfig struct {
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
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
	v.SetEnvPrefix("ANCHOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "nest-anchor-cleaner/1.0 (contact: ops@nest-urban.org)")
	v.SetDefault("nominatim.timeout_secs", 30)
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.user_agent", "nest-anchor-cleaner/1.0 (contact: ops@nest-urban.org)")
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("correct.throttle", "1.1s")
	v.SetDefault("correct.radius_m", 150)
	v.SetDefault("buildings.batch_size", 500)

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
