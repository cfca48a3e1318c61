package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	cfgpkg "github.com/KaramelBytes/exodetect-cli/internal/config"
	"github.com/KaramelBytes/exodetect-cli/internal/logging"
	"github.com/KaramelBytes/exodetect-cli/internal/utils"
	"github.com/spf13/cobra"
)

const serviceName = "exodetect"

var (
	// Global flags
	cfgFile       string
	debug         bool
	flagLogLevel  string
	flagModelsDir string

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "exodetect",
	Short: "ExoDetect CLI: classify transit tables and assess planet habitability",
	Long: `ExoDetect decodes messy exoplanet tables (Kepler KOI, K2, NASA archive exports),
classifies them with a random forest or a light-curve heuristic, computes
habitability indicators, and trains the models it serves over HTTP.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.exodetect/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagModelsDir, "models-dir", "", "directory holding models and artifacts (overrides config)")
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to built-in values
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{LogLevel: "info", LogFormat: "text", ModelsDir: "models"}
	}

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("models-dir") && flagModelsDir != "" {
		c.ModelsDir = flagModelsDir
	}
	if f.Changed("log-level") && flagLogLevel != "" {
		c.LogLevel = flagLogLevel
	}
	if debug {
		c.LogLevel = "debug"
	}
	if p, err := utils.ExpandHome(c.ModelsDir); err == nil {
		c.ModelsDir = p
	}
	if abs, err := filepath.Abs(c.ModelsDir); err == nil {
		c.ModelsDir = abs
	}
	cfg = c
	logger = logging.New(os.Stderr, serviceName, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
}
