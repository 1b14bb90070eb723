// Package journal keeps an append-only SQLite record of sync runs and the
// transfers they made. Sync decisions never read it.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"paperbridge/internal/models"
)

const (
	busyTimeoutMS   = 5000
	maxOpenConns    = 1
	maxIdleConns    = 1
	connMaxLifetime = 5 * time.Minute

	defaultRecentLimit = 20

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

// Journal wraps the SQLite database.
type Journal struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the journal at path and bootstraps the schema.
func Open(path string) (*Journal, error) {
	dsn, err := sqliteDSN(path)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	if err := configureDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := runMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db, now: time.Now}, nil
}

// Close closes the underlying database connection.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// StartRun records the start of a run and returns its id.
func (j *Journal) StartRun(ctx context.Context, mode string) (string, error) {
	id := uuid.NewString()
	_, err := j.db.ExecContext(ctx,
		"INSERT INTO runs (id, mode, started_at) VALUES (?, ?, ?)",
		id, mode, formatTime(j.now()),
	)
	if err != nil {
		return "", fmt.Errorf("start run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its end time and counters.
func (j *Journal) FinishRun(ctx context.Context, run models.Run) error {
	res, err := j.db.ExecContext(ctx,
		"UPDATE runs SET finished_at = ?, pushed = ?, pulled = ?, failed = ? WHERE id = ?",
		formatTime(j.now()), run.Pushed, run.Pulled, run.Failed, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run %s: unknown run", run.ID)
	}
	return nil
}

// Record appends one transfer outcome.
func (j *Journal) Record(ctx context.Context, t models.Transfer) error {
	at := t.At
	if at.IsZero() {
		at = j.now()
	}
	_, err := j.db.ExecContext(ctx, `
INSERT INTO transfers (run_id, direction, item_key, document, outcome, step, detail, at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		t.RunID, string(t.Direction), nullable(t.ItemKey), t.Document, string(t.Outcome),
		nullable(t.Step), nullable(t.Detail), formatTime(at),
	)
	if err != nil {
		return fmt.Errorf("record transfer: %w", err)
	}
	return nil
}

// Recent returns the newest transfers first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.Transfer, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, run_id, direction, item_key, document, outcome, step, detail, at
FROM transfers ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Transfer
	for rows.Next() {
		var (
			t                     models.Transfer
			direction, outcome    string
			itemKey, step, detail sql.NullString
			at                    string
		)
		if err := rows.Scan(&t.ID, &t.RunID, &direction, &itemKey, &t.Document, &outcome, &step, &detail, &at); err != nil {
			return nil, err
		}
		t.Direction = models.Direction(direction)
		t.Outcome = models.Outcome(outcome)
		t.ItemKey = itemKey.String
		t.Step = step.String
		t.Detail = detail.String
		if t.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("transfer %d: %w", t.ID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Runs returns the newest runs first.
func (j *Journal) Runs(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	rows, err := j.db.QueryContext(ctx, `
SELECT id, mode, started_at, finished_at, pushed, pulled, failed
FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Run
	for rows.Next() {
		var (
			r        models.Run
			started  string
			finished sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Mode, &started, &finished, &r.Pushed, &r.Pulled, &r.Failed); err != nil {
			return nil, err
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if finished.Valid {
			ts, err := parseTime(finished.String)
			if err != nil {
				return nil, err
			}
			r.FinishedAt = &ts
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func configureDB(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA foreign_keys = ON;",
		fmt.Sprintf("PRAGMA busy_timeout = %d;", busyTimeoutMS),
	}
	for _, stmt := range pragmas {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	return nil
}

func sqliteDSN(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("journal path is required")
	}
	u := url.URL{Scheme: "file", Path: path}
	return u.String(), nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}
