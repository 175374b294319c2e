package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	upsertRunQuery = `
INSERT INTO sync_run (mode, run_id, phase, message, last_attempt, last_success, attempts, summary)
VALUES ($1, NULLIF($2, '')::uuid, $3, $4, $5, $6, $7, $8)
ON CONFLICT (mode) DO UPDATE SET
    run_id       = EXCLUDED.run_id,
    phase        = EXCLUDED.phase,
    message      = EXCLUDED.message,
    last_attempt = EXCLUDED.last_attempt,
    last_success = EXCLUDED.last_success,
    attempts     = EXCLUDED.attempts,
    summary      = EXCLUDED.summary`

	selectRunColumns = `
SELECT mode, COALESCE(run_id::text, ''), phase, message, last_attempt, last_success, attempts, summary
FROM sync_run`
)

// dbStatusPersistence implements StatusPersistence on the sync_run table
type dbStatusPersistence struct {
	pool *pgxpool.Pool
}

// NewDBStatusPersistence creates a status persistence backed by PostgreSQL
func NewDBStatusPersistence(pool *pgxpool.Pool) StatusPersistence {
	return &dbStatusPersistence{pool: pool}
}

func (d *dbStatusPersistence) SaveStatus(ctx context.Context, mode string, status *RunStatus) error {
	var summary []byte
	if status.Summary != nil {
		var err error
		summary, err = json.Marshal(status.Summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary for mode '%s': %w", mode, err)
		}
	}

	_, err := d.pool.Exec(ctx, upsertRunQuery,
		mode,
		status.RunID,
		string(status.Phase),
		status.Message,
		status.LastAttempt,
		status.LastSuccess,
		status.AttemptCount,
		summary,
	)
	if err != nil {
		return fmt.Errorf("failed to save status for mode '%s': %w", mode, err)
	}
	return nil
}

func (d *dbStatusPersistence) LoadStatus(ctx context.Context, mode string) (*RunStatus, error) {
	row := d.pool.QueryRow(ctx, selectRunColumns+` WHERE mode = $1`, mode)
	status, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return &RunStatus{Mode: mode}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load status for mode '%s': %w", mode, err)
	}
	return status, nil
}

func (d *dbStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*RunStatus, error) {
	rows, err := d.pool.Query(ctx, selectRunColumns+` ORDER BY mode`)
	if err != nil {
		return nil, fmt.Errorf("failed to list run status: %w", err)
	}
	defer rows.Close()

	result := make(map[string]*RunStatus)
	for rows.Next() {
		status, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read run status: %w", err)
		}
		result[status.Mode] = status
	}
	return result, rows.Err()
}

func scanRun(row pgx.Row) (*RunStatus, error) {
	var (
		status  RunStatus
		phase   string
		summary []byte
		attempt *time.Time
		success *time.Time
	)
	err := row.Scan(
		&status.Mode,
		&status.RunID,
		&phase,
		&status.Message,
		&attempt,
		&success,
		&status.AttemptCount,
		&summary,
	)
	if err != nil {
		return nil, err
	}
	status.Phase = SyncPhase(phase)
	status.LastAttempt = attempt
	status.LastSuccess = success
	if len(summary) > 0 {
		status.Summary = &RunSummary{}
		if err := json.Unmarshal(summary, status.Summary); err != nil {
			return nil, fmt.Errorf("invalid summary for mode '%s': %w", status.Mode, err)
		}
	}
	return &status, nil
}
