package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. SHIPFLOW_TRANSPORT_THREADS.
const EnvPrefix = "SHIPFLOW"

// PathEnv names the environment variable that points at the config file.
const PathEnv = EnvPrefix + "_CONFIG"

// Resolve returns the config file to load: PathEnv when set, otherwise
// config/<alias>.yaml under dir.
func Resolve(dir, alias string) string {
	if p := os.Getenv(PathEnv); p != "" {
		return p
	}
	if alias == "" || alias == "$LATEST" {
		alias = "latest"
	}
	return filepath.Join(dir, "config", alias+".yaml")
}

// Load reads path (YAML, JSON or TOML by extension), applies defaults and
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		return nil, errors.New("config path is required")
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	return decode(v)
}

// Parse builds a config from already-decoded data, for embedding and tests.
func Parse(data map[string]any) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	if err := v.MergeConfigMap(data); err != nil {
		return nil, err
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("handler.fail_on_exception", d.Handler.FailOnException)
	v.SetDefault("handler.serialization_failure", d.Handler.SerializationFailure)
	v.SetDefault("handler.decompress_gzip", d.Handler.DecompressGzip)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("wrapper.type", d.Wrapper.Type)
	v.SetDefault("serializer.type", d.Serializer.Type)
	v.SetDefault("transport.threads", d.Transport.Threads)
}
