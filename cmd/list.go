package cmd

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/KaramelBytes/exodetect-cli/internal/artifacts"
	"github.com/spf13/cobra"
)

var (
	listKind    string
	listVariant string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List artifacts recorded in the models directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := artifacts.Load(cfg.ModelsDir)
		if errors.Is(err, fs.ErrNotExist) {
			fmt.Println("(no artifacts)")
			return nil
		}
		if err != nil {
			return err
		}
		found := false
		for _, a := range reg.List() {
			if listKind != "" && a.Kind != listKind {
				continue
			}
			if listVariant != "" && a.Variant != listVariant {
				continue
			}
			found = true
			fmt.Printf("- [%s] %s %s (%d rows, %d bytes, %s)\n",
				a.Variant, a.Kind, a.Name, a.Rows, a.Size, a.CreatedAt.Format("2006-01-02 15:04"))
		}
		if !found {
			fmt.Println("(no artifacts)")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().StringVar(&listKind, "kind", "", "filter by kind: model | preprocessor | metrics | cleaned")
	listCmd.Flags().StringVar(&listVariant, "variant", "", "filter by variant: kepler | k2")
}
