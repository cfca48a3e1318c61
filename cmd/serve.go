package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/exodetect-cli/internal/auth"
	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/metrics"
	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/KaramelBytes/exodetect-cli/internal/server"
	"github.com/KaramelBytes/exodetect-cli/internal/store/postgres"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
	"github.com/spf13/cobra"
)

const defaultAuthSecret = "change-me"

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve predictions, habitability and training over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr := cfg.ServerAddr
		if serveAddr != "" {
			addr = serveAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.AuthSecret == "" || cfg.AuthSecret == defaultAuthSecret {
			logger.Warn("auth_secret is unset or default; tokens are forgeable")
		}

		opt := classifier.DefaultOptions()
		if cfg.NEstimators > 0 {
			opt.NEstimators = cfg.NEstimators
		}
		opt.RandomState = cfg.RandomState
		opt.MaxDepth = cfg.MaxDepth

		o := server.Options{
			Runtime:        pipeline.Load(cfg.ModelsDir, logger),
			Trainer:        &training.Trainer{Dir: cfg.ModelsDir, Options: opt, Logger: logger},
			Issuer:         auth.NewIssuer(cfg.AuthSecret, time.Duration(cfg.TokenTTLSec)*time.Second),
			Metrics:        metrics.New(serviceName),
			Logger:         logger,
			LogLevel:       cfg.LogLevel,
			MaxUploadMB:    cfg.MaxUploadMB,
			RateLimitRPS:   cfg.RateLimitRPS,
			RateLimitBurst: cfg.RateLimitBurst,
			CORSOrigins:    cfg.CORSOrigins,
		}
		if cfg.DatabaseDSN != "" {
			db, err := openPredictionLog(ctx)
			if err != nil {
				return fmt.Errorf("prediction log: %w", err)
			}
			defer db.Close()
			o.Predictions = postgres.NewPredictionLog(db)
			logger.Info("prediction log enabled")
		}

		e := server.BuildServer(o)
		errCh := make(chan error, 1)
		go func() {
			logger.Info("http server listening", "addr", addr, "models_dir", cfg.ModelsDir)
			errCh <- e.Start(addr)
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server_addr)")
}
