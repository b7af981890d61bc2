package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Supported reference store drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	LogLevel            string        `mapstructure:"LOG_LEVEL"`
	DBDriver            string        `mapstructure:"DB_DRIVER"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	RedisCacheTTL       time.Duration `mapstructure:"REDIS_CACHE_TTL"`
	LabCacheMaxEntries  int           `mapstructure:"LAB_CACHE_MAX_ENTRIES"`
	NEREndpointURL      string        `mapstructure:"NER_ENDPOINT_URL"`
	NERTimeout          time.Duration `mapstructure:"NER_TIMEOUT"`
	NERFacility         string        `mapstructure:"NER_FACILITY"`
	NERTypeMappingFile  string        `mapstructure:"NER_TYPE_MAPPING_FILE"`
	ComponentRulesFile  string        `mapstructure:"COMPONENT_RULES_FILE"`
	RadiologyMethodCUIs string        `mapstructure:"RADIOLOGY_METHOD_CUIS"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "DB_DRIVER", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"REDIS_URL", "REDIS_CACHE_TTL", "LAB_CACHE_MAX_ENTRIES",
	"NER_ENDPOINT_URL", "NER_TIMEOUT", "NER_FACILITY", "NER_TYPE_MAPPING_FILE",
	"COMPONENT_RULES_FILE", "RADIOLOGY_METHOD_CUIS", "BODY_LIMIT", "REQUEST_TIMEOUT",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DRIVER", DriverPostgres)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("REDIS_CACHE_TTL", "24h")
	v.SetDefault("LAB_CACHE_MAX_ENTRIES", 50000)
	v.SetDefault("NER_TIMEOUT", "30s")
	v.SetDefault("NER_FACILITY", "RUMC")
	v.SetDefault("BODY_LIMIT", "2M")
	v.SetDefault("REQUEST_TIMEOUT", "60s")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the driver and the numeric limits.
func (c *Config) Validate() error {
	if c.DBDriver != DriverPostgres && c.DBDriver != DriverSQLite {
		return fmt.Errorf("DB_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.DBDriver)
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBDriver == DriverPostgres {
		if c.DBMaxConns < 1 {
			return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
		}
		if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
		}
	}
	if c.LabCacheMaxEntries < 1 {
		return fmt.Errorf("LAB_CACHE_MAX_ENTRIES must be positive, got %d", c.LabCacheMaxEntries)
	}
	if c.RedisURL != "" && c.RedisCacheTTL < 0 {
		return fmt.Errorf("REDIS_CACHE_TTL must not be negative, got %s", c.RedisCacheTTL)
	}
	if c.NEREndpointURL != "" {
		if !strings.HasPrefix(c.NEREndpointURL, "http://") && !strings.HasPrefix(c.NEREndpointURL, "https://") {
			return fmt.Errorf("NER_ENDPOINT_URL must be an http(s) URL, got %q", c.NEREndpointURL)
		}
		if c.NERTimeout <= 0 {
			return fmt.Errorf("NER_TIMEOUT must be positive, got %s", c.NERTimeout)
		}
	}
	return nil
}
