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
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Site    SiteConfig    `yaml:"site" mapstructure:"site"`
	Filters FiltersConfig `yaml:"filters" mapstructure:"filters"`
	Slack   SlackConfig   `yaml:"slack" mapstructure:"slack"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// SiteConfig configures the target classifieds site.
type SiteConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FiltersConfig holds the listing filter bounds submitted to the site.
// Values are opaque pass-throughs; the site interprets them.
type FiltersConfig struct {
	PriceMin   string `yaml:"price_min" mapstructure:"price_min"`
	PriceMax   string `yaml:"price_max" mapstructure:"price_max"`
	YearFrom   string `yaml:"year_from" mapstructure:"year_from"`
	YearTo     string `yaml:"year_to" mapstructure:"year_to"`
	EngineFrom string `yaml:"engine_from" mapstructure:"engine_from"`
	EngineTo   string `yaml:"engine_to" mapstructure:"engine_to"`
	Color      string `yaml:"color" mapstructure:"color"`
	BodyType   string `yaml:"body_type" mapstructure:"body_type"`
	FuelType   string `yaml:"fuel_type" mapstructure:"fuel_type"`
	Gearbox    string `yaml:"gearbox" mapstructure:"gearbox"`
}

// SlackConfig holds the incoming-webhook settings for new-advert alerts.
type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// ServerConfig configures the read-only status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("ADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about, so keys
	// without a default (ADSCOUT_STORE_DATABASE_URL and friends) must be
	// bound explicitly or Unmarshal never sees them.
	for _, key := range []string{
		"store.driver",
		"store.database_url",
		"site.base_url",
		"site.timeout_secs",
		"filters.price_min",
		"filters.price_max",
		"filters.year_from",
		"filters.year_to",
		"filters.engine_from",
		"filters.engine_to",
		"filters.color",
		"filters.body_type",
		"filters.fuel_type",
		"filters.gearbox",
		"slack.webhook_url",
		"server.port",
		"log.level",
		"log.format",
	} {
		if err := v.BindEnv(key); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("site.base_url", "https://www.ss.com")
	v.SetDefault("site.timeout_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks that configuration required by the given subsystem is present.
func (c *Config) Validate(subsystem string) error {
	switch subsystem {
	case "store":
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			return eris.New("config: store.database_url is required (ADSCOUT_STORE_DATABASE_URL)")
		}
	case "site":
		if c.Site.BaseURL == "" {
			return eris.New("config: site.base_url is required")
		}
	}
	return nil
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
