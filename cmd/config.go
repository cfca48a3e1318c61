package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/exodetect-cli/internal/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configShowYAML bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set ExoDetect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		masked := *cfg
		masked.AuthSecret = mask(cfg.AuthSecret)
		masked.DatabaseDSN = mask(cfg.DatabaseDSN)
		if configShowYAML {
			b, err := yaml.Marshal(&masked)
			if err != nil {
				return fmt.Errorf("marshal yaml: %w", err)
			}
			fmt.Print(string(b))
			return nil
		}
		fmt.Printf("models_dir: %s\n", masked.ModelsDir)
		fmt.Printf("log_level: %s\n", masked.LogLevel)
		fmt.Printf("log_format: %s\n", masked.LogFormat)
		fmt.Printf("server_addr: %s\n", masked.ServerAddr)
		fmt.Printf("auth_secret: %s\n", masked.AuthSecret)
		fmt.Printf("token_ttl_sec: %d\n", masked.TokenTTLSec)
		fmt.Printf("max_upload_mb: %d\n", masked.MaxUploadMB)
		fmt.Printf("rate_limit_rps: %.3f\n", masked.RateLimitRPS)
		fmt.Printf("rate_limit_burst: %d\n", masked.RateLimitBurst)
		fmt.Printf("cors_origins: %s\n", strings.Join(masked.CORSOrigins, ","))
		if masked.DatabaseDSN != "" {
			fmt.Printf("database_dsn: %s\n", masked.DatabaseDSN)
		}
		fmt.Printf("n_estimators: %d\n", masked.NEstimators)
		fmt.Printf("random_state: %d\n", masked.RandomState)
		fmt.Printf("max_depth: %d\n", masked.MaxDepth)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		// Start from the file and env only, so flag overrides are not persisted.
		c, err := cfgpkg.Load(cfgFile)
		if err != nil {
			return err
		}
		if err := setKey(c, key, val); err != nil {
			return err
		}
		if err := cfgpkg.Save(c, cfgFile); err != nil {
			return err
		}
		cfg = c
		fmt.Println("Saved config")
		return nil
	},
}

func setKey(c *cfgpkg.Global, key, val string) error {
	atoi := func(lo int) (int, error) {
		i, err := strconv.Atoi(val)
		if err != nil || i < lo {
			return 0, fmt.Errorf("invalid int for %s: %v", key, val)
		}
		return i, nil
	}
	var err error
	switch key {
	case "models_dir":
		c.ModelsDir = val
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s (use debug, info, warn or error)", val)
		}
	case "log_format":
		switch strings.ToLower(val) {
		case "text", "json":
			c.LogFormat = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_format: %s (use text or json)", val)
		}
	case "server_addr":
		c.ServerAddr = val
	case "auth_secret":
		c.AuthSecret = val
	case "token_ttl_sec":
		c.TokenTTLSec, err = atoi(1)
	case "max_upload_mb":
		c.MaxUploadMB, err = atoi(1)
	case "rate_limit_rps":
		f, perr := strconv.ParseFloat(val, 64)
		if perr != nil || f < 0 {
			return fmt.Errorf("invalid float for rate_limit_rps: %v", val)
		}
		c.RateLimitRPS = f
	case "rate_limit_burst":
		c.RateLimitBurst, err = atoi(0)
	case "cors_origins":
		var origins []string
		for _, o := range strings.Split(val, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.CORSOrigins = origins
	case "database_dsn":
		c.DatabaseDSN = val
	case "n_estimators":
		c.NEstimators, err = atoi(1)
	case "random_state":
		i, perr := strconv.ParseInt(val, 10, 64)
		if perr != nil {
			return fmt.Errorf("invalid int for random_state: %v", val)
		}
		c.RandomState = i
	case "max_depth":
		c.MaxDepth, err = atoi(0)
	default:
		return fmt.Errorf("unknown key: %s (known: %s)", key, strings.Join(cfgpkg.Keys, ", "))
	}
	return err
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configShowCmd.Flags().BoolVar(&configShowYAML, "yaml", false, "print as YAML")
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
