package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/moldesc/internal/config"
	"github.com/turtacn/moldesc/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

func stubOpen(t *testing.T, db *sql.DB, err error) *string {
	t.Helper()
	var gotDSN string
	original := sqlOpen
	t.Cleanup(func() { sqlOpen = original })
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		assert.Equal(t, "pgx", driver)
		gotDSN = dsn
		return db, err
	}
	return &gotDSN
}

func testDatabaseConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Enabled:  true,
		Host:     "localhost",
		Port:     5432,
		User:     "moldesc",
		Password: "pw",
		DBName:   "moldesc",
	}
}

func TestNewConnection_Success(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	dsn := stubOpen(t, db, nil)

	mock.ExpectPing()

	conn, err := NewConnection(testDatabaseConfig(), logging.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, db, conn.DB())
	assert.Equal(t, "postgres://moldesc:pw@localhost:5432/moldesc?sslmode=disable", *dsn)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_PingFailure(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	stubOpen(t, db, nil)

	mock.ExpectPing().WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	conn, err := NewConnection(testDatabaseConfig(), nil)
	assert.Nil(t, conn)

	var appErr *pkgerrors.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, pkgerrors.ErrCodeDatabaseError, appErr.Code)
	assert.Equal(t, "database connection failed", appErr.Message)
	assert.Contains(t, appErr.Cause.Error(), "connection refused")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewConnection_OpenFailure(t *testing.T) {
	stubOpen(t, nil, errors.New("open failed"))

	conn, err := NewConnection(testDatabaseConfig(), nil)
	assert.Nil(t, conn)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func TestConnection_HealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	conn := NewConnectionWithDB(db, nil)

	mock.ExpectPing()
	assert.NoError(t, conn.HealthCheck(context.Background()))

	mock.ExpectPing().WillReturnError(errors.New("timeout"))
	assert.Error(t, conn.HealthCheck(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_Close_Idempotent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	conn := NewConnectionWithDB(db, logging.NewNopLogger())

	mock.ExpectClose()
	assert.NoError(t, conn.Close())
	assert.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnection_WithTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	conn := NewConnectionWithDB(db, nil)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM runs").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	err = conn.WithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, "DELETE FROM runs")
		return err
	})
	assert.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = conn.WithTransaction(ctx, func(*sql.Tx) error { return errors.New("abort") })
	assert.EqualError(t, err, "abort")

	mock.ExpectBegin().WillReturnError(errors.New("busy"))
	err = conn.WithTransaction(ctx, func(*sql.Tx) error { return nil })
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))

	assert.NoError(t, mock.ExpectationsWereMet())
}
