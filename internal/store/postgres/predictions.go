// Package postgres persists the prediction log.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/google/uuid"
)

const schemaLockID int64 = 2025100401

// Entry is one logged prediction.
type Entry struct {
	ID          string          `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Source      string          `json:"source"`
	Variant     string          `json:"variant"`
	Model       string          `json:"model"`
	Status      string          `json:"status"`
	Confidence  float64         `json:"confidence"`
	DatasetType string          `json:"dataset_type,omitempty"`
	RowsIn      int             `json:"rows_in"`
	RowsOut     int             `json:"rows_out"`
	Explanation json.RawMessage `json:"explanation,omitempty"`
}

// EntryFromPrediction flattens a prediction for storage.
func EntryFromPrediction(source, variant string, p *pipeline.Prediction) Entry {
	e := Entry{
		Source:      source,
		Variant:     variant,
		Model:       p.Model,
		Status:      string(p.Result.Status),
		Confidence:  p.Result.Confidence,
		DatasetType: string(p.DatasetType),
	}
	if p.Preprocessing != nil {
		e.RowsIn, e.RowsOut = p.Preprocessing.RowsIn, p.Preprocessing.RowsOut
	}
	if p.Explanation != nil {
		if b, err := json.Marshal(p.Explanation); err == nil {
			e.Explanation = b
		}
	}
	return e
}

// PredictionLog stores entries in the predictions table.
type PredictionLog struct {
	db *sql.DB
}

func NewPredictionLog(db *sql.DB) *PredictionLog {
	return &PredictionLog{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (l *PredictionLog) EnsureSchema(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent server starts.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS predictions (
	id TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	source TEXT NOT NULL,
	variant TEXT NOT NULL,
	model TEXT NOT NULL,
	status TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	dataset_type TEXT NOT NULL DEFAULT '',
	rows_in INTEGER NOT NULL DEFAULT 0,
	rows_out INTEGER NOT NULL DEFAULT 0,
	explanation JSONB
);

CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Record inserts e, filling ID and CreatedAt when empty.
func (l *PredictionLog) Record(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var expl any
	if len(e.Explanation) > 0 {
		expl = []byte(e.Explanation)
	}
	_, err := l.db.ExecContext(ctx, `
INSERT INTO predictions (id, created_at, source, variant, model, status, confidence, dataset_type, rows_in, rows_out, explanation)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`, e.ID, e.CreatedAt, e.Source, e.Variant, e.Model, e.Status, e.Confidence, e.DatasetType, e.RowsIn, e.RowsOut, expl)
	if err != nil {
		return fmt.Errorf("record prediction: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (l *PredictionLog) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx, `
SELECT id, created_at, source, variant, model, status, confidence, dataset_type, rows_in, rows_out, explanation
FROM predictions
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var expl []byte
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.Source, &e.Variant, &e.Model, &e.Status,
			&e.Confidence, &e.DatasetType, &e.RowsIn, &e.RowsOut, &expl); err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		if len(expl) > 0 {
			e.Explanation = json.RawMessage(expl)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate predictions: %w", err)
	}
	return out, nil
}
