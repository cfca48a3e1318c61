package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/KaramelBytes/exodetect-cli/internal/habitability"
	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/spf13/cobra"
)

var habJSON bool

var habitabilityCmd = &cobra.Command{
	Use:   "habitability <file>",
	Short: "Compute habitability indicators for every planet in a table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		recs, err := pipeline.New(nil, nil, nil, logger).Habitability(b)
		if err != nil {
			return err
		}
		if habJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string][]habitability.Record{"planets": recs})
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tCLASS\tSCORE\tESI\tHZ\tTEQ (K)\tSUMMARY")
		for _, r := range recs {
			fmt.Fprintf(w, "%s\t%s\t%.4f\t%s\t%t\t%s\t%s\n",
				r.Name, strOrDash(r.StarClass), r.Score, numOrDash(r.ESI, "%.4f"),
				r.HabitableZone, numOrDash(r.TempEq, "%.0f"), r.Summary)
		}
		return w.Flush()
	},
}

func strOrDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func numOrDash(x *float64, format string) string {
	if x == nil {
		return "-"
	}
	return fmt.Sprintf(format, *x)
}

func init() {
	rootCmd.AddCommand(habitabilityCmd)
	habitabilityCmd.Flags().BoolVar(&habJSON, "json", false, "print records as JSON")
}
