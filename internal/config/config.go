// Package config loads address-helper settings from config.yaml and
// ADDRHELPER_* environment variables and initialises the global logger.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/address-helper/pkg/egrn"
)

// Version is stamped at build time and used in the default User-Agent.
var Version = "dev"

// ErrInvalid marks configuration errors. They are fatal and raised before any
// request is made.
var ErrInvalid = eris.New("config: invalid configuration")

// Duplicate policies for tags.double_policy.
const (
	DoublePolicyDropAll   = "drop_all"
	DoublePolicyKeepFirst = "keep_first"
)

// Validation modes.
const (
	ModeEnrich = "enrich"
	ModeServe  = "serve"
	ModeStore  = "store"
)

// Config holds the full application configuration.
type Config struct {
	EGRN     EGRNConfig     `yaml:"egrn" mapstructure:"egrn"`
	Tags     TagsConfig     `yaml:"tags" mapstructure:"tags"`
	Patterns PatternsConfig `yaml:"patterns" mapstructure:"patterns"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Import   ImportConfig   `yaml:"import" mapstructure:"import"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// EGRNConfig configures the cadastral lookup client and the fetch scheduler.
type EGRNConfig struct {
	URLTemplate        string  `yaml:"url_template" mapstructure:"url_template"`
	RequestLimit       int     `yaml:"request_limit" mapstructure:"request_limit"`
	RequestDelaySecs   float64 `yaml:"request_delay_secs" mapstructure:"request_delay_secs"`
	TimeoutSecs        int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit          float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	InsecureSkipVerify bool    `yaml:"insecure_skip_verify" mapstructure:"insecure_skip_verify"`
}

// RequestDelay returns the pacing delay as a duration.
func (c EGRNConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelaySecs * float64(time.Second))
}

// Timeout returns the per-request timeout.
func (c EGRNConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// TagsConfig controls which tags a batch writes.
type TagsConfig struct {
	RecordRawAddress bool   `yaml:"record_raw_address" mapstructure:"record_raw_address"`
	RawAddressKey    string `yaml:"raw_address_key" mapstructure:"raw_address_key"`
	SourceValue      string `yaml:"source_value" mapstructure:"source_value"`
	ClearDoubles     bool   `yaml:"clear_doubles" mapstructure:"clear_doubles"`
	DoublePolicy     string `yaml:"double_policy" mapstructure:"double_policy"`
}

// PatternsConfig overrides the bundled pattern catalogs.
type PatternsConfig struct {
	HousePath  string `yaml:"house_path" mapstructure:"house_path"`
	StreetPath string `yaml:"street_path" mapstructure:"street_path"`
}

// StoreConfig selects the dataset backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OverpassConfig configures the Overpass API importer.
type OverpassConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the Overpass request timeout.
func (c OverpassConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ImportConfig configures downloads of remote import sources.
type ImportConfig struct {
	TimeoutSecs int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// Timeout returns the download timeout for remote import sources.
func (c ImportConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultUserAgent identifies the tool to the cadastral service.
func DefaultUserAgent() string {
	return fmt.Sprintf("address-helper/%s. Loading addresses for OpenStreetMap.", Version)
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADDRHELPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("egrn.url_template", egrn.DefaultTemplate)
	v.SetDefault("egrn.request_limit", 2)
	v.SetDefault("egrn.request_delay_secs", 1.0)
	v.SetDefault("egrn.timeout_secs", 30)
	v.SetDefault("egrn.user_agent", DefaultUserAgent())
	v.SetDefault("egrn.rate_limit", 0.0)
	v.SetDefault("egrn.insecure_skip_verify", false)
	v.SetDefault("tags.record_raw_address", false)
	v.SetDefault("tags.raw_address_key", "addr:RU:egrn")
	v.SetDefault("tags.source_value", "ЕГРН")
	v.SetDefault("tags.clear_doubles", true)
	v.SetDefault("tags.double_policy", DoublePolicyDropAll)
	v.SetDefault("patterns.house_path", "")
	v.SetDefault("patterns.street_path", "")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "address-helper.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("import.timeout_secs", 120)
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

// Validate checks the settings a command mode depends on. All problems are
// reported together, wrapped in ErrInvalid.
func (c *Config) Validate(mode string) error {
	var errs []string

	checkStore := func() {
		switch strings.ToLower(c.Store.Driver) {
		case "sqlite", "postgres":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}

	switch mode {
	case ModeEnrich:
		errs = append(errs, c.validateEnrich()...)
	case ModeServe:
		errs = append(errs, c.validateEnrich()...)
		checkStore()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case ModeStore:
		checkStore()
	default:
		return eris.Wrapf(ErrInvalid, "unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Wrapf(ErrInvalid, "%s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateEnrich() []string {
	var errs []string
	if _, err := egrn.ParseTemplate(c.EGRN.URLTemplate); err != nil {
		errs = append(errs, "egrn.url_template must contain {lat} and {lon} and be an absolute http(s) url")
	}
	if c.EGRN.RequestLimit < 1 {
		errs = append(errs, "egrn.request_limit must be >= 1")
	}
	if c.EGRN.RequestDelaySecs < 0 {
		errs = append(errs, "egrn.request_delay_secs must be >= 0")
	}
	if c.EGRN.TimeoutSecs < 0 {
		errs = append(errs, "egrn.timeout_secs must be >= 0")
	}
	if c.EGRN.RateLimit < 0 {
		errs = append(errs, "egrn.rate_limit must be >= 0")
	}
	if c.Tags.RecordRawAddress && c.Tags.RawAddressKey == "" {
		errs = append(errs, "tags.raw_address_key is required when tags.record_raw_address is on")
	}
	switch c.Tags.DoublePolicy {
	case DoublePolicyDropAll, DoublePolicyKeepFirst:
	default:
		errs = append(errs, fmt.Sprintf("tags.double_policy %q must be %s or %s",
			c.Tags.DoublePolicy, DoublePolicyDropAll, DoublePolicyKeepFirst))
	}
	return errs
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
