package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/KaramelBytes/exodetect-cli/internal/store/postgres"
	"github.com/spf13/cobra"
)

var (
	histLimit int
	histJSON  bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent predictions from the database log",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openPredictionLog(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()
		entries, err := postgres.NewPredictionLog(db).Recent(cmd.Context(), histLimit)
		if err != nil {
			return err
		}
		if histJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(entries)
		}
		if len(entries) == 0 {
			fmt.Println("(no predictions)")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("- %s %s [%s/%s] %s %.4f\n",
				e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.Source, e.Variant, e.Model, e.Status, e.Confidence)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVarP(&histLimit, "limit", "n", 20, "number of entries to show")
	historyCmd.Flags().BoolVar(&histJSON, "json", false, "print entries as JSON")
}
