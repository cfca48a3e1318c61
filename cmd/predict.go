package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/KaramelBytes/exodetect-cli/internal/store/postgres"
	"github.com/KaramelBytes/exodetect-cli/internal/training"
	"github.com/spf13/cobra"
)

var (
	predModel  string
	predJSON   bool
	predQuiet  bool
	predRecord bool
)

type filePrediction struct {
	File       string               `json:"file"`
	Prediction *pipeline.Prediction `json:"prediction"`
}

var predictCmd = &cobra.Command{
	Use:   "predict <files...>",
	Short: "Classify one or more uploads (globs allowed) with the loaded models",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, err := training.ParseVariant(predModel)
		if err != nil {
			return err
		}
		files, err := expandInputs(args)
		if err != nil {
			return err
		}

		var plog *postgres.PredictionLog
		if predRecord {
			db, err := openPredictionLog(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			plog = postgres.NewPredictionLog(db)
		}

		rt := pipeline.Load(cfg.ModelsDir, logger)
		if !rt.HasModel(v) && !predQuiet && !predJSON {
			fmt.Fprintf(os.Stderr, "⚠ No %s model in %s, using the flux-variance heuristic\n", v, cfg.ModelsDir)
		}

		out := make([]filePrediction, 0, len(files))
		total := len(files)
		for i, path := range files {
			if !predQuiet && !predJSON {
				fmt.Printf("[%d/%d] Processing %s...\n", i+1, total, filepath.Base(path))
			}
			b, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", path, err)
			}
			if len(b) == 0 {
				return fmt.Errorf("%s: %w", path, pipeline.ErrEmptyInput)
			}
			p := rt.Predict(b, v)
			if plog != nil {
				entry := postgres.EntryFromPrediction(filepath.Base(path), string(v), p)
				if err := plog.Record(cmd.Context(), &entry); err != nil {
					return err
				}
			}
			out = append(out, filePrediction{File: path, Prediction: p})
			if !predJSON {
				printPrediction(p)
			}
		}
		if predJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		}
		return nil
	},
}

func printPrediction(p *pipeline.Prediction) {
	model := p.Model
	if model == "" {
		model = "none"
	}
	fmt.Printf("✓ %s (confidence %.4f, model %s", p.Result.Status, p.Result.Confidence, model)
	if p.DatasetType != "" {
		fmt.Printf(", dataset %s", p.DatasetType)
	}
	fmt.Println(")")
	if p.Preprocessing != nil {
		fmt.Printf("  rows: %d in, %d used\n", p.Preprocessing.RowsIn, p.Preprocessing.RowsOut)
	}
	if p.Explanation != nil {
		for _, c := range p.Explanation.TopFeatures {
			fmt.Printf("  - %s %s median (influence %.4f)\n", c.Feature, c.Direction, c.Influence)
		}
	}
}

// expandInputs resolves globs and literal paths, deduplicated and sorted.
func expandInputs(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// openPredictionLog connects to database_dsn and ensures the schema.
func openPredictionLog(ctx context.Context) (*sql.DB, error) {
	if cfg.DatabaseDSN == "" {
		return nil, fmt.Errorf("database_dsn is not configured (set it with `exodetect config set database_dsn <dsn>`)")
	}
	db, err := postgres.OpenDB(cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	if err := postgres.NewPredictionLog(db).EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func init() {
	rootCmd.AddCommand(predictCmd)
	predictCmd.Flags().StringVarP(&predModel, "model", "m", "kepler", "model variant: kepler | k2")
	predictCmd.Flags().BoolVar(&predJSON, "json", false, "print predictions as JSON")
	predictCmd.Flags().BoolVar(&predQuiet, "quiet", false, "suppress progress output")
	predictCmd.Flags().BoolVar(&predRecord, "record", false, "append predictions to the database prediction log")
}
