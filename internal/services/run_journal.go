package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/AnshRaj112/eyeglaze/internal/models"
)

// RunJournal keeps a history of pipeline runs per user.
type RunJournal interface {
	Record(ctx context.Context, run *models.PipelineRun) error
	ListByUsername(ctx context.Context, username string, limit int) ([]models.PipelineRun, error)
}

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

const createPipelineRunsTable = `CREATE TABLE IF NOT EXISTS pipeline_runs (
	id UUID PRIMARY KEY,
	username VARCHAR(254) NOT NULL,
	outcome VARCHAR(20) NOT NULL,
	failed_stage VARCHAR(20),
	error_kind VARCHAR(30),
	error_message TEXT,
	label VARCHAR(20),
	probability DOUBLE PRECISION NOT NULL DEFAULT 0,
	image_url TEXT,
	submitted BOOLEAN NOT NULL DEFAULT FALSE,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL
)`

const createPipelineRunsIndex = `CREATE INDEX IF NOT EXISTS idx_pipeline_runs_username_started ON pipeline_runs(username, started_at DESC)`

// PostgresRunJournal stores runs in the pipeline_runs table.
type PostgresRunJournal struct {
	db *sql.DB
}

func NewPostgresRunJournal(db *sql.DB) *PostgresRunJournal {
	return &PostgresRunJournal{db: db}
}

// EnsureSchema creates the table and index if they don't exist.
func (j *PostgresRunJournal) EnsureSchema(ctx context.Context) error {
	for _, q := range []string{createPipelineRunsTable, createPipelineRunsIndex} {
		if _, err := j.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure pipeline_runs schema: %w", err)
		}
	}
	return nil
}

func (j *PostgresRunJournal) Record(ctx context.Context, run *models.PipelineRun) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, username, outcome, failed_stage, error_kind, error_message, label, probability, image_url, submitted, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, run.ID, run.Username, string(run.Outcome), nullString(run.FailedStage), nullString(run.ErrorKind),
		nullString(run.ErrorMessage), nullString(string(run.Label)), run.Probability, nullString(run.ImageURL),
		run.Submitted, run.StartedAt, run.FinishedAt)
	if err != nil {
		return fmt.Errorf("record pipeline run: %w", err)
	}
	return nil
}

// ListByUsername returns the most recent runs first.
func (j *PostgresRunJournal) ListByUsername(ctx context.Context, username string, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, username, outcome, failed_stage, error_kind, error_message, label, probability, image_url, submitted, started_at, finished_at
		FROM pipeline_runs
		WHERE username = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, username, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []models.PipelineRun{}
	for rows.Next() {
		var run models.PipelineRun
		var outcome string
		var failedStage, errorKind, errorMessage, label, imageURL sql.NullString
		if err := rows.Scan(&run.ID, &run.Username, &outcome, &failedStage, &errorKind, &errorMessage,
			&label, &run.Probability, &imageURL, &run.Submitted, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline run: %w", err)
		}
		run.Outcome = models.RunOutcome(outcome)
		run.FailedStage = failedStage.String
		run.ErrorKind = errorKind.String
		run.ErrorMessage = errorMessage.String
		run.Label = models.StressLabel(label.String)
		run.ImageURL = imageURL.String
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	return runs, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
