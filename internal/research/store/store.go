// Package store archives finished research runs in PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"deepsearch-workers/internal/research"
)

var ErrRunNotFound = errors.New("RUN_NOT_FOUND")

const schema = `CREATE TABLE IF NOT EXISTS research_runs (
	run_id          TEXT PRIMARY KEY,
	session_id      TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	query           TEXT NOT NULL,
	status          TEXT NOT NULL,
	rounds          INTEGER NOT NULL,
	evidence        JSONB NOT NULL,
	error           TEXT,
	started_at      TIMESTAMPTZ NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL
)`

const insertRun = `INSERT INTO research_runs
	(run_id, session_id, conversation_id, query, status, rounds, evidence, error, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const selectRun = `SELECT run_id, session_id, conversation_id, query, status, rounds, evidence, error, started_at, finished_at
	FROM research_runs WHERE run_id = $1`

// RunStore implements research.Recorder.
type RunStore struct {
	db *sql.DB
}

func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// EnsureSchema creates the research_runs table if it is missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create research_runs: %w", err)
	}
	return nil
}

func (s *RunStore) Record(ctx context.Context, run research.RunRecord) error {
	evidence := run.Evidence
	if evidence == nil {
		evidence = research.Evidence{}
	}
	data, err := json.Marshal(evidence)
	if err != nil {
		return fmt.Errorf("encode evidence: %w", err)
	}

	var errText sql.NullString
	if run.Error != "" {
		errText = sql.NullString{String: run.Error, Valid: true}
	}

	_, err = s.db.ExecContext(ctx, insertRun,
		run.RunID, run.SessionID, run.ConversationID, run.Query, string(run.Status),
		run.Rounds, data, errText, run.StartedAt, run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert research run %s: %w", run.RunID, err)
	}
	return nil
}

func (s *RunStore) Get(ctx context.Context, runID string) (*research.RunRecord, error) {
	var (
		run      research.RunRecord
		status   string
		evidence []byte
		errText  sql.NullString
	)
	err := s.db.QueryRowContext(ctx, selectRun, runID).Scan(
		&run.RunID, &run.SessionID, &run.ConversationID, &run.Query, &status,
		&run.Rounds, &evidence, &errText, &run.StartedAt, &run.FinishedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query research run %s: %w", runID, err)
	}

	run.Status = research.Status(status)
	run.Error = errText.String
	if err := json.Unmarshal(evidence, &run.Evidence); err != nil {
		return nil, fmt.Errorf("decode evidence for run %s: %w", runID, err)
	}
	return &run, nil
}

var _ research.Recorder = (*RunStore)(nil)
