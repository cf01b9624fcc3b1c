package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/getkayan/kidentity/mapping"
	"github.com/spf13/viper"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBType != "sqlite" || cfg.DSN != "kidentity.db" || cfg.KeyType != "string" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	s, err := cfg.Strategy()
	if err != nil || s != mapping.KeyHexComb {
		t.Fatalf("expected hexcomb default, got %v, %v", s, err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("DSN", "host=localhost dbname=identity")
	t.Setenv("KEY_TYPE", "uuid")
	t.Setenv("SKIP_AUTO_MIGRATE", "true")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.DBType != "postgres" || !cfg.SkipAutoMigrate || !cfg.UUIDKeys() {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if s, _ := cfg.Strategy(); s != mapping.KeyGuidComb {
		t.Fatalf("expected guidcomb for uuid keys, got %v", s)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := "KEY_STRATEGY: snowflake\nSNOWFLAKE_NODE: 12\nSERVICE_NAME: accounts\n"
	if err := os.WriteFile(filepath.Join(dir, "identity.yaml"), []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	v := viper.New()
	v.SetConfigName("identity")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	cfg, err := load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SnowflakeNode != 12 || cfg.ServiceName != "accounts" {
		t.Fatalf("file not applied: %+v", cfg)
	}
	if s, _ := cfg.Strategy(); s != mapping.KeySnowflake {
		t.Fatalf("expected snowflake, got %v", s)
	}
	if opts := cfg.GeneratorOptions(); opts.SnowflakeNode != 12 {
		t.Fatalf("unexpected generator options %+v", opts)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		DBType:      "sqlite",
		DSN:         ":memory:",
		LogLevel:    "info",
		KeyType:     "string",
		ServiceName: "kidentity",
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"unknown dialect", func(c *Config) { c.DBType = "oracle" }, true},
		{"missing dsn", func(c *Config) { c.DSN = "" }, true},
		{"unknown key type", func(c *Config) { c.KeyType = "int" }, true},
		{"node out of range", func(c *Config) { c.SnowflakeNode = 4096 }, true},
		{"bad endpoint", func(c *Config) { c.OTelEndpoint = "not a url" }, true},
		{"guidcomb with string keys", func(c *Config) { c.KeyStrategy = "guidcomb" }, true},
		{"ksuid with uuid keys", func(c *Config) { c.KeyType = "uuid"; c.KeyStrategy = "ksuid" }, true},
		{"ksuid with string keys", func(c *Config) { c.KeyStrategy = "ksuid" }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStrategyMismatch(t *testing.T) {
	c := Config{KeyType: "uuid", KeyStrategy: "hexcomb"}
	if _, err := c.Strategy(); !errors.Is(err, mapping.ErrStrategyMismatch) {
		t.Fatalf("expected ErrStrategyMismatch, got %v", err)
	}
}
