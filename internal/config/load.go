package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/driftgate/internal/errors"
)

// FileName is the project config file looked up in the working directory.
const FileName = "driftgate.yaml"

// New returns a viper instance with defaults and environment binding but no
// config file.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("DRIFTGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	BindSensitiveEnvVars(v)
	SetDefaults(v)
	return v
}

// Load reads path, or ./driftgate.yaml when path is empty and that file
// exists, on top of defaults and environment variables.
func Load(path string) (*Config, error) {
	v := New()
	if path == "" {
		if _, err := os.Stat(FileName); err == nil {
			path = FileName
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}
	return LoadWithViper(v)
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
