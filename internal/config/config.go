package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	ModelsDir string `mapstructure:"models_dir" yaml:"models_dir"`
	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	// HTTP server
	ServerAddr     string   `mapstructure:"server_addr" yaml:"server_addr"`
	AuthSecret     string   `mapstructure:"auth_secret" yaml:"auth_secret"`
	TokenTTLSec    int      `mapstructure:"token_ttl_sec" yaml:"token_ttl_sec"`
	MaxUploadMB    int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	RateLimitRPS   float64  `mapstructure:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst int      `mapstructure:"rate_limit_burst" yaml:"rate_limit_burst"`
	CORSOrigins    []string `mapstructure:"cors_origins" yaml:"cors_origins"`

	// Prediction log; empty disables it.
	DatabaseDSN string `mapstructure:"database_dsn" yaml:"database_dsn"`

	// Training
	NEstimators int   `mapstructure:"n_estimators" yaml:"n_estimators"`
	RandomState int64 `mapstructure:"random_state" yaml:"random_state"`
	MaxDepth    int   `mapstructure:"max_depth" yaml:"max_depth"`
}

// Keys lists the settable configuration keys in display order.
var Keys = []string{
	"models_dir", "log_level", "log_format",
	"server_addr", "auth_secret", "token_ttl_sec", "max_upload_mb",
	"rate_limit_rps", "rate_limit_burst", "cors_origins",
	"database_dsn",
	"n_estimators", "random_state", "max_depth",
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".exodetect"), nil
}

// Path returns cfgFile, or ~/.exodetect/config.yaml when it is empty.
func Path(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	dir, err := defaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.exodetect/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path, err := Path(cfgFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Flags are applied by the caller.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("EXODETECT")
	v.AutomaticEnv()
	for _, k := range Keys {
		// AutomaticEnv alone does not reach Unmarshal for keys without a value.
		_ = v.BindEnv(k)
	}

	v.SetDefault("models_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("server_addr", ":8000")
	v.SetDefault("auth_secret", "change-me")
	v.SetDefault("token_ttl_sec", 3600)
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)
	v.SetDefault("cors_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000"})
	v.SetDefault("database_dsn", "")
	v.SetDefault("n_estimators", 300)
	v.SetDefault("random_state", 42)
	v.SetDefault("max_depth", 0)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Resolve models_dir default: ~/.exodetect/models
	if c.ModelsDir == "" {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		c.ModelsDir = filepath.Join(dir, "models")
	}
	return &c, nil
}
