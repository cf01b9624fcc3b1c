// Package config loads the adapter settings from the environment, an
// optional .env file and an optional identity.yaml.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/getkayan/kidentity/mapping"
	"github.com/getkayan/kidentity/telemetry"
	"github.com/go-playground/validator"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	DBType          string `mapstructure:"DB_TYPE" validate:"required,oneof=sqlite postgres mysql"`
	DSN             string `mapstructure:"DSN" validate:"required"`
	SkipAutoMigrate bool   `mapstructure:"SKIP_AUTO_MIGRATE"`
	LogLevel        string `mapstructure:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	KeyType         string `mapstructure:"KEY_TYPE" validate:"required,oneof=string uuid"`
	KeyStrategy     string `mapstructure:"KEY_STRATEGY" validate:"omitempty,oneof=guidcomb hexcomb ksuid snowflake"`
	SnowflakeNode   int64  `mapstructure:"SNOWFLAKE_NODE" validate:"min=0,max=1023"`
	OTelEndpoint    string `mapstructure:"OTEL_ENDPOINT" validate:"omitempty,url"`
	ServiceName     string `mapstructure:"SERVICE_NAME" validate:"required"`
}

var defaults = map[string]any{
	"DB_TYPE":           "sqlite",
	"DSN":               "kidentity.db",
	"SKIP_AUTO_MIGRATE": false,
	"LOG_LEVEL":         "info",
	"KEY_TYPE":          "string",
	"KEY_STRATEGY":      "",
	"SNOWFLAKE_NODE":    0,
	"OTEL_ENDPOINT":     "",
	"SERVICE_NAME":      "kidentity",
}

// LoadConfig reads .env (when present), the environment and identity.yaml
// from the working directory or /etc/kidentity.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("identity")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/kidentity/")
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.DBType = strings.ToLower(cfg.DBType)
	cfg.KeyType = strings.ToLower(cfg.KeyType)
	cfg.KeyStrategy = strings.ToLower(cfg.KeyStrategy)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints and that the key strategy fits the key
// type.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := c.Strategy(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// UUIDKeys reports whether entities use uuid.UUID keys.
func (c *Config) UUIDKeys() bool {
	return c.KeyType == "uuid"
}

// Strategy resolves the key strategy, defaulting to guidcomb for uuid keys
// and hexcomb for string keys.
func (c *Config) Strategy() (mapping.KeyStrategy, error) {
	if c.KeyStrategy == "" {
		if c.UUIDKeys() {
			return mapping.KeyGuidComb, nil
		}
		return mapping.KeyHexComb, nil
	}
	s, err := mapping.ParseKeyStrategy(c.KeyStrategy)
	if err != nil {
		return 0, err
	}
	if (s == mapping.KeyGuidComb) != c.UUIDKeys() {
		return 0, fmt.Errorf("%w: %s with %s keys", mapping.ErrStrategyMismatch, s, c.KeyType)
	}
	return s, nil
}

// GeneratorOptions returns the key generator options.
func (c *Config) GeneratorOptions() mapping.GeneratorOptions {
	return mapping.GeneratorOptions{SnowflakeNode: c.SnowflakeNode}
}

// Telemetry returns the tracing configuration.
func (c *Config) Telemetry(version string) telemetry.Config {
	t := telemetry.DefaultConfig()
	t.ServiceName = c.ServiceName
	t.ServiceVersion = version
	t.Endpoint = c.OTelEndpoint
	return t
}
