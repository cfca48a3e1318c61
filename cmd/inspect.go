package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/KaramelBytes/exodetect-cli/internal/analysis"
	"github.com/KaramelBytes/exodetect-cli/internal/ingest"
	"github.com/KaramelBytes/exodetect-cli/internal/schema"
	"github.com/spf13/cobra"
)

var (
	inspOutputPath string
	inspSampleRows int
	inspMaxRows    int
	inspCorr       bool
	inspOutliers   bool
	inspOutlierThr float64
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Decode a table and print a dataset profile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		opt := analysis.DefaultOptions()
		if inspSampleRows >= 0 {
			opt.SampleRows = inspSampleRows
		}
		if inspMaxRows >= 0 {
			opt.MaxRows = inspMaxRows
		}
		opt.Correlations = inspCorr
		if cmd.Flags().Changed("outliers") {
			opt.Outliers = inspOutliers
		}
		if inspOutlierThr > 0 {
			opt.OutlierThreshold = inspOutlierThr
		}

		b, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		t, err := ingest.Decode(b)
		if err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
		md := analysis.Profile(filepath.Base(path), t, opt).Markdown() + mappingMarkdown(t)

		if inspOutputPath != "" {
			if err := os.WriteFile(inspOutputPath, []byte(md), 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Printf("✓ Wrote profile to %s\n", inspOutputPath)
			return nil
		}
		fmt.Println(md)
		return nil
	},
}

// mappingMarkdown reports the source column feeding each canonical column
// and its median. Unmapped columns list the names they would accept.
func mappingMarkdown(t *ingest.Table) string {
	ct := schema.Adapt(t)
	aliases := schema.Aliases()
	var b strings.Builder
	b.WriteString("\n## Canonical mapping\n\n| Column | Source | Median |\n|---|---|---|\n")
	for _, canon := range schema.Columns {
		src, ok := ct.Mapping[canon]
		if !ok {
			fmt.Fprintf(&b, "| %s | - (accepts %s) | - |\n", canon, strings.Join(aliases[canon][1:], ", "))
			continue
		}
		var vals []float64
		for _, cell := range t.Column(src) {
			if x, ok := ingest.ParseNumber(cell); ok {
				vals = append(vals, x)
			}
		}
		med := "-"
		if len(vals) > 0 {
			med = strconv.FormatFloat(analysis.Median(vals), 'g', 6, 64)
		}
		fmt.Fprintf(&b, "| %s | %s | %s |\n", canon, src, med)
	}
	return b.String()
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().StringVarP(&inspOutputPath, "output", "o", "", "optional path to write the profile (Markdown)")
	inspectCmd.Flags().IntVar(&inspSampleRows, "sample-rows", 5, "number of sample rows to include")
	inspectCmd.Flags().IntVar(&inspMaxRows, "max-rows", 100000, "maximum rows to process (0 = unlimited)")
	inspectCmd.Flags().BoolVar(&inspCorr, "correlations", false, "compute Pearson correlations among numeric columns")
	inspectCmd.Flags().BoolVar(&inspOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	inspectCmd.Flags().Float64Var(&inspOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
}
