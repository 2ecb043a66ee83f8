package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"spacepredict/ml"
)

// PredictionRecord is one journaled prediction.
type PredictionRecord struct {
	ID            string           `json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	Raw           ml.RawRecord     `json:"raw"`
	Encoded       ml.EncodedRecord `json:"encoded"`
	Label         int              `json:"label"`
	Probability   float64          `json:"probability"`
	Transported   bool             `json:"transported"`
	Message       string           `json:"message"`
	ModelType     string           `json:"model_type"`
	LabelsVersion string           `json:"labels_version"`
}

// Journal appends predictions to a SQLite database.
type Journal struct {
	database *sql.DB
}

// OpenJournal opens (creating if needed) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New("journal path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	database, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        created_at DATETIME NOT NULL,
        raw TEXT NOT NULL,
        encoded TEXT NOT NULL,
        label INTEGER NOT NULL,
        probability REAL NOT NULL,
        transported INTEGER NOT NULL,
        message TEXT NOT NULL,
        model_type TEXT NOT NULL,
        labels_version TEXT NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    `
	if _, err := database.Exec(query); err != nil {
		database.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{database: database}, nil
}

func (j *Journal) Close() error {
	return j.database.Close()
}

// SavePrediction stores one prediction.
func (j *Journal) SavePrediction(ctx context.Context, rec PredictionRecord) error {
	if rec.ID == "" {
		return errors.New("prediction id required")
	}
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(rec.Encoded)
	if err != nil {
		return err
	}
	_, err = j.database.ExecContext(ctx, `
        INSERT INTO predictions (
            id, created_at, raw, encoded, label, probability, transported,
            message, model_type, labels_version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.CreatedAt.UTC(),
		string(raw),
		string(encoded),
		rec.Label,
		rec.Probability,
		rec.Transported,
		rec.Message,
		rec.ModelType,
		rec.LabelsVersion,
	)
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (j *Journal) RecentPredictions(ctx context.Context, limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.database.QueryContext(ctx, `
        SELECT id, created_at, raw, encoded, label, probability, transported,
               message, model_type, labels_version
        FROM predictions
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var raw, encoded string
		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &raw, &encoded, &rec.Label, &rec.Probability,
			&rec.Transported, &rec.Message, &rec.ModelType, &rec.LabelsVersion); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &rec.Raw); err != nil {
			return nil, fmt.Errorf("decode raw record %s: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(encoded), &rec.Encoded); err != nil {
			return nil, fmt.Errorf("decode encoded record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountPredictions returns how many predictions have been journaled.
func (j *Journal) CountPredictions(ctx context.Context) (int, error) {
	var n int
	err := j.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM predictions`).Scan(&n)
	return n, err
}
