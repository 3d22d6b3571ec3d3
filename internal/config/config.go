// Package config loads agentreg settings from defaults, a YAML file,
// AGENTREG_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/agentregistry/internal/tracing"
)

// EnvPrefix prefixes environment overrides, e.g. AGENTREG_REGISTRY_STRICT_CID.
const EnvPrefix = "AGENTREG"

// LocalConfigFile is checked before the user config directory.
const LocalConfigFile = ".agentreg.yaml"

// Config holds all agentreg settings.
type Config struct {
	DB       string         `mapstructure:"db"`
	Format   string         `mapstructure:"format"`
	Verbose  bool           `mapstructure:"verbose"`
	Registry RegistryConfig `mapstructure:"registry"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Tracing  tracing.Config `mapstructure:"tracing"`
}

// RegistryConfig configures CID validation.
type RegistryConfig struct {
	// StrictCID enforces the 'bafy' prefix in addition to the non-empty check.
	StrictCID bool `mapstructure:"strict_cid"`
}

// LedgerConfig configures the ledger host.
type LedgerConfig struct {
	// ViewCacheTTL bounds how long view results stay cached. 0 disables the cache.
	ViewCacheTTL time.Duration `mapstructure:"view_cache_ttl"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DB:      "agentreg.db",
		Format:  "text",
		Ledger:  LedgerConfig{ViewCacheTTL: 5 * time.Minute},
		Tracing: tracing.DefaultConfig(),
	}
}

// Load reads configuration into a fresh viper instance.
//
// If cfgFile is empty, .agentreg.yaml in the working directory is used when
// present, then ~/.config/agentreg/config.yaml. A missing default file is not
// an error; a missing explicit file is. flags may be nil.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else if _, err := os.Stat(LocalConfigFile); err == nil {
		v.SetConfigFile(LocalConfigFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "agentreg"))
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// flagBindings maps config keys to the persistent flags that override them.
var flagBindings = map[string]string{
	"db":                  "db",
	"format":              "format",
	"verbose":             "verbose",
	"tracing.exporter":    "trace",
	"registry.strict_cid": "strict-cid",
}

func setDefaults(v *viper.Viper) {
	d := Defaults()
	v.SetDefault("db", d.DB)
	v.SetDefault("format", d.Format)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("registry.strict_cid", d.Registry.StrictCID)
	v.SetDefault("ledger.view_cache_ttl", d.Ledger.ViewCacheTTL)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.otlp_endpoint", d.Tracing.OTLPEndpoint)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
}

// Validate checks enumerated and bounded settings.
func (c Config) Validate() error {
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	switch c.Tracing.Exporter {
	case tracing.ExporterNone, tracing.ExporterStdout, tracing.ExporterOTLP, "":
	default:
		return fmt.Errorf("invalid tracing exporter %q: must be none, stdout or otlp", c.Tracing.Exporter)
	}
	if c.Ledger.ViewCacheTTL < 0 {
		return fmt.Errorf("ledger.view_cache_ttl must not be negative")
	}
	if c.DB == "" {
		return fmt.Errorf("db path is required")
	}
	return nil
}
