package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
	"github.com/spf13/cobra"
)

var (
	trainCleaned     string
	trainK2          bool
	trainNEstimators int
	trainRandomState int64
	trainMaxDepth    int
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Train a random forest on a cleaned CSV and save its artifacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := training.Kepler
		if trainK2 {
			v = training.K2
		}
		opt := classifier.DefaultOptions()
		if cfg.NEstimators > 0 {
			opt.NEstimators = cfg.NEstimators
		}
		opt.RandomState = cfg.RandomState
		opt.MaxDepth = cfg.MaxDepth
		f := cmd.Flags()
		if f.Changed("n-estimators") && trainNEstimators > 0 {
			opt.NEstimators = trainNEstimators
		}
		if f.Changed("random-state") {
			opt.RandomState = trainRandomState
		}
		if f.Changed("max-depth") && trainMaxDepth >= 0 {
			opt.MaxDepth = trainMaxDepth
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		tr := &training.Trainer{Dir: cfg.ModelsDir, Options: opt, Logger: logger}
		res, err := tr.TrainFile(ctx, trainCleaned, v)
		if err != nil {
			return err
		}
		m := res.Metrics
		fmt.Printf("✓ Trained %s model on %d rows x %d features in %s\n", v, m.Rows, len(m.Features), res.Duration.Round(time.Millisecond))
		fmt.Printf("  accuracy: %.4f\n", m.Accuracy)
		if m.AUCMicroOVR != nil {
			fmt.Printf("  roc_auc (micro, ovr): %.4f\n", *m.AUCMicroOVR)
		}
		fmt.Printf("✓ Model: %s\n", res.ModelPath)
		fmt.Printf("✓ Metrics: %s\n", res.MetricsPath)
		if res.PreprocessorPath != "" {
			fmt.Printf("✓ Preprocessor: %s\n", res.PreprocessorPath)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVar(&trainCleaned, "cleaned", "", "cleaned CSV produced by `exodetect clean`")
	trainCmd.Flags().BoolVar(&trainK2, "k2", false, "train the reduced K2 model")
	trainCmd.Flags().IntVar(&trainNEstimators, "n-estimators", 300, "number of trees (overrides config)")
	trainCmd.Flags().Int64Var(&trainRandomState, "random-state", 42, "random seed (overrides config)")
	trainCmd.Flags().IntVar(&trainMaxDepth, "max-depth", 0, "maximum tree depth, 0 = unlimited (overrides config)")
	_ = trainCmd.MarkFlagRequired("cleaned")
}
