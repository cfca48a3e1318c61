package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/KaramelBytes/exodetect-cli/internal/artifacts"
	"github.com/KaramelBytes/exodetect-cli/internal/cleaning"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
	"github.com/spf13/cobra"
)

var (
	cleanInput  string
	cleanOutput string
	cleanK2     bool
)

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean a raw KOI/K2 table into a labelled training CSV",
	RunE: func(cmd *cobra.Command, args []string) error {
		v := training.Kepler
		if cleanK2 {
			v = training.K2
		}
		out := cleanOutput
		if out == "" {
			out = filepath.Join(cfg.ModelsDir, "cleaned_"+string(v)+".csv")
		}
		m, err := cleaning.CleanFile(cleanInput, out, cleanK2)
		if err != nil {
			return err
		}

		reg, err := artifacts.Open(cfg.ModelsDir)
		if err != nil {
			return err
		}
		if _, err := reg.Record(artifacts.KindCleaned, string(v), m.Output, m.RowsAfter); err != nil {
			return err
		}
		if err := reg.Save(); err != nil {
			return err
		}

		c := m.PipelineCounts
		fmt.Printf("✓ Cleaned %d -> %d rows (dropna %d, numeric %d, outliers %d, labels %d)\n",
			m.RowsBefore, m.RowsAfter, c.AfterDropna, c.AfterNumeric, c.AfterOutliers, c.AfterLabelFilter)
		fmt.Printf("✓ Wrote %s and %s\n", m.Output, cleaning.ManifestName)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().StringVar(&cleanInput, "input", "", "raw KOI or archive table")
	cleanCmd.Flags().StringVar(&cleanOutput, "output", "", "cleaned CSV path (default <models-dir>/cleaned_<variant>.csv)")
	cleanCmd.Flags().BoolVar(&cleanK2, "k2", false, "keep only koi_period and koi_prad")
	_ = cleanCmd.MarkFlagRequired("input")
}
