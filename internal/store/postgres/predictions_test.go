package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/KaramelBytes/exodetect-cli/internal/classifier"
	"github.com/KaramelBytes/exodetect-cli/internal/pipeline"
	"github.com/KaramelBytes/exodetect-cli/internal/preprocess"
)

func TestEnsureSchemaTakesLockAndCommits(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("pg_advisory_xact_lock").WithArgs(schemaLockID).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS predictions").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := NewPredictionLog(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordFillsIDAndTimestamp(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	p := &pipeline.Prediction{
		Result:        pipeline.Result{Status: classifier.StatusCandidate, Confidence: 0.61},
		Model:         "kepler",
		Explanation:   &pipeline.Explanation{TopFeatures: []classifier.Contribution{{Feature: "koi_prad", Influence: 0.2, Direction: "above"}}},
		Preprocessing: &preprocess.Info{RowsIn: 4, RowsOut: 3, DroppedRows: 1},
		DatasetType:   "Kepler",
	}
	e := EntryFromPrediction("upload.csv", "kepler", p)

	mock.ExpectExec("INSERT INTO predictions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), "upload.csv", "kepler", "kepler", "Candidate", 0.61, "Kepler", 4, 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := NewPredictionLog(db).Record(context.Background(), &e); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if e.ID == "" || e.CreatedAt.IsZero() {
		t.Fatalf("entry = %+v, want generated id and timestamp", e)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecentScansRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "created_at", "source", "variant", "model", "status", "confidence", "dataset_type", "rows_in", "rows_out", "explanation"}).
		AddRow("p-2", now, "b.csv", "k2", "heuristic", "Candidate", 0.5, "K2", 0, 0, nil).
		AddRow("p-1", now.Add(-time.Minute), "a.csv", "kepler", "kepler", "Exoplanet", 0.9, "Kepler", 10, 10, []byte(`{"top_features":[]}`))
	mock.ExpectQuery("FROM predictions").WithArgs(5).WillReturnRows(rows)

	got, err := NewPredictionLog(db).Recent(context.Background(), 5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "p-2" || got[1].RowsIn != 10 || string(got[1].Explanation) != `{"top_features":[]}` {
		t.Fatalf("entries = %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRecordWrapsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	defer db.Close()

	boom := errors.New("connection reset")
	mock.ExpectExec("INSERT INTO predictions").WillReturnError(boom)
	err = NewPredictionLog(db).Record(context.Background(), &Entry{Source: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("Record() error = %v, want wrapped %v", err, boom)
	}
}
