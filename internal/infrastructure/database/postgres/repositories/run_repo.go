// Package repositories holds the PostgreSQL implementations of the domain
// repositories.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/database/postgres"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/moldesc/pkg/errors"
)

// queryExecutor abstracts sql.DB and sql.Tx
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

const (
	insertRunSQL = `INSERT INTO runs (id, descriptors, started_at, duration_ms, molecules)
VALUES ($1, $2, $3, $4, $5)`
	insertRowSQL = `INSERT INTO run_rows (run_id, idx, input, name, row_values, row_errors, parse_error)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	selectRunSQL = `SELECT id, descriptors, started_at, duration_ms FROM runs WHERE id = $1`
	selectRowsSQL = `SELECT idx, input, name, row_values, row_errors, parse_error
FROM run_rows WHERE run_id = $1 ORDER BY idx`
	listRunsSQL = `SELECT id, descriptors, started_at, duration_ms FROM runs
ORDER BY started_at DESC LIMIT $1 OFFSET $2`
	deleteRunSQL = `DELETE FROM runs WHERE id = $1`
)

// RunRepository stores runs in the runs and run_rows tables.
type RunRepository struct {
	conn   *postgres.Connection
	logger logging.Logger
}

var _ run.Repository = (*RunRepository)(nil)

func NewRunRepository(conn *postgres.Connection, log logging.Logger) *RunRepository {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &RunRepository{conn: conn, logger: log}
}

// Save inserts the run header and every row in one transaction.
func (r *RunRepository) Save(ctx context.Context, rn *run.Run) error {
	descJSON, err := json.Marshal(rn.Descriptors)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode descriptors")
	}

	err = r.conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertRunSQL,
			rn.ID.String(), descJSON, rn.StartedAt, rn.Duration.Milliseconds(), len(rn.Rows),
		); err != nil {
			return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run")
		}
		for _, row := range rn.Rows {
			if err := insertRow(ctx, tx, rn.ID, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save run", logging.String("run_id", rn.ID.String()), logging.Err(err))
		return err
	}
	r.logger.Debug("Saved run", logging.String("run_id", rn.ID.String()), logging.Int("rows", len(rn.Rows)))
	return nil
}

func insertRow(ctx context.Context, q queryExecutor, runID uuid.UUID, row run.Row) error {
	values, err := json.Marshal(row.Values)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode row values")
	}
	var rowErrors []byte
	if len(row.Errors) > 0 {
		if rowErrors, err = json.Marshal(row.Errors); err != nil {
			return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode row errors")
		}
	}
	if _, err := q.ExecContext(ctx, insertRowSQL,
		runID.String(), row.Index, row.Input, row.Name, values, rowErrors, row.ParseError,
	); err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to insert run row")
	}
	return nil
}

// Get loads a run with its rows in input order.
func (r *RunRepository) Get(ctx context.Context, id uuid.UUID) (*run.Run, error) {
	db := r.conn.DB()
	rn, err := scanRun(db.QueryRowContext(ctx, selectRunSQL, id.String()))
	if err == sql.ErrNoRows {
		return nil, run.ErrNotFound.WithDetail(id.String())
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, selectRowsSQL, id.String())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to query run rows")
	}
	defer rows.Close()
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		rn.Rows = append(rn.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate run rows")
	}
	return rn, nil
}

// List returns run headers, newest first. Rows are not loaded.
func (r *RunRepository) List(ctx context.Context, limit, offset int) ([]*run.Run, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := r.conn.DB().QueryContext(ctx, listRunsSQL, limit, offset)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to list runs")
	}
	defer rows.Close()

	var out []*run.Run
	for rows.Next() {
		rn, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rn)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to iterate runs")
	}
	return out, nil
}

// Delete removes a run; its rows go with it via ON DELETE CASCADE.
func (r *RunRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.conn.DB().ExecContext(ctx, deleteRunSQL, id.String())
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete run")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to delete run")
	}
	if n == 0 {
		return run.ErrNotFound.WithDetail(id.String())
	}
	return nil
}

func scanRun(s scanner) (*run.Run, error) {
	var (
		rn         run.Run
		descJSON   []byte
		durationMs int64
	)
	if err := s.Scan(&rn.ID, &descJSON, &rn.StartedAt, &durationMs); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run")
	}
	if err := json.Unmarshal(descJSON, &rn.Descriptors); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode descriptors")
	}
	rn.Duration = time.Duration(durationMs) * time.Millisecond
	return &rn, nil
}

func scanRow(s scanner) (run.Row, error) {
	var (
		row       run.Row
		values    []byte
		rowErrors []byte
	)
	if err := s.Scan(&row.Index, &row.Input, &row.Name, &values, &rowErrors, &row.ParseError); err != nil {
		return row, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to scan run row")
	}
	if err := json.Unmarshal(values, &row.Values); err != nil {
		return row, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode row values")
	}
	if len(rowErrors) > 0 {
		if err := json.Unmarshal(rowErrors, &row.Errors); err != nil {
			return row, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode row errors")
		}
	}
	return row, nil
}
