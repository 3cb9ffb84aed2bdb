package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/moldesc/internal/domain/run"
	"github.com/turtacn/moldesc/internal/infrastructure/database/postgres"
	pkgerrors "github.com/turtacn/moldesc/pkg/errors"
)

type RunRepoTestSuite struct {
	suite.Suite
	db   *sql.DB
	mock sqlmock.Sqlmock
	repo *RunRepository
}

func (s *RunRepoTestSuite) SetupTest() {
	var err error
	s.db, s.mock, err = sqlmock.New()
	require.NoError(s.T(), err)
	s.repo = NewRunRepository(postgres.NewConnectionWithDB(s.db, nil), nil)
}

func (s *RunRepoTestSuite) TearDownTest() {
	s.NoError(s.mock.ExpectationsWereMet())
	s.db.Close()
}

func sampleRun() *run.Run {
	return &run.Run{
		ID:          uuid.MustParse("6f1c1d56-63a4-4bb8-9b07-3d6a6a2f6a10"),
		Descriptors: []string{"nC", "RadiusOfGyration"},
		StartedAt:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Duration:    1500 * time.Millisecond,
		Rows: []run.Row{
			{Index: 0, Input: "CCO", Values: []any{2, nil}, Errors: map[string]string{"RadiusOfGyration": "missing 3D coordinate"}},
			{Index: 1, Input: "C1CC", Values: []any{nil, nil}, ParseError: "unclosed ring"},
		},
	}
}

func (s *RunRepoTestSuite) TestSave_Success() {
	rn := sampleRun()
	id := rn.ID.String()

	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO runs").
		WithArgs(id, []byte(`["nC","RadiusOfGyration"]`), rn.StartedAt, int64(1500), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO run_rows").
		WithArgs(id, 0, "CCO", "", []byte(`[2,null]`), []byte(`{"RadiusOfGyration":"missing 3D coordinate"}`), "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO run_rows").
		WithArgs(id, 1, "C1CC", "", []byte(`[null,null]`), []byte(nil), "unclosed ring").
		WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectCommit()

	s.NoError(s.repo.Save(context.Background(), rn))
}

func (s *RunRepoTestSuite) TestSave_RowFailureRollsBack() {
	rn := sampleRun()

	s.mock.ExpectBegin()
	s.mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(0, 1))
	s.mock.ExpectExec("INSERT INTO run_rows").WillReturnError(errors.New("disk full"))
	s.mock.ExpectRollback()

	err := s.repo.Save(context.Background(), rn)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeDatabaseError))
}

func (s *RunRepoTestSuite) TestGet_Success() {
	rn := sampleRun()
	s.mock.ExpectQuery("SELECT id, descriptors, started_at, duration_ms FROM runs WHERE id").
		WithArgs(rn.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "descriptors", "started_at", "duration_ms"}).
			AddRow(rn.ID.String(), []byte(`["nC","RadiusOfGyration"]`), rn.StartedAt, int64(1500)))
	s.mock.ExpectQuery("FROM run_rows").
		WithArgs(rn.ID.String()).
		WillReturnRows(sqlmock.NewRows([]string{"idx", "input", "name", "row_values", "row_errors", "parse_error"}).
			AddRow(0, "CCO", "ethanol", []byte(`[2,null]`), []byte(`{"RadiusOfGyration":"missing"}`), "").
			AddRow(1, "C1CC", "", []byte(`[null,null]`), nil, "unclosed ring"))

	got, err := s.repo.Get(context.Background(), rn.ID)
	s.Require().NoError(err)
	s.Equal(rn.ID, got.ID)
	s.Equal(rn.Descriptors, got.Descriptors)
	s.Equal(1500*time.Millisecond, got.Duration)
	s.Require().Len(got.Rows, 2)
	s.Equal("ethanol", got.Rows[0].Name)
	s.Equal([]any{float64(2), nil}, got.Rows[0].Values)
	s.Equal("missing", got.Rows[0].Errors["RadiusOfGyration"])
	s.Nil(got.Rows[1].Errors)
	s.True(got.Rows[1].Failed())
}

func (s *RunRepoTestSuite) TestGet_NotFound() {
	id := uuid.New()
	s.mock.ExpectQuery("FROM runs WHERE id").WithArgs(id.String()).WillReturnError(sql.ErrNoRows)

	_, err := s.repo.Get(context.Background(), id)
	s.True(pkgerrors.IsCode(err, pkgerrors.ErrCodeRunNotFound))
}

func (s *RunRepoTestSuite) TestList_ClampsLimit() {
	rn := sampleRun()
	s.mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "descriptors", "started_at", "duration_ms"}).
			AddRow(rn.ID.String(), []byte(`["nC"]`), rn.StartedAt, int64(10)))

	runs, err := s.repo.List(context.Background(), 0, -5)
	s.Require().NoError(err)
	s.Require().Len(runs, 1)
	s.Equal([]string{"nC"}, runs[0].Descriptors)
	s.Empty(runs[0].Rows)
}

func (s *RunRepoTestSuite) TestDelete() {
	id := uuid.New()
	s.mock.ExpectExec("DELETE FROM runs").WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 1))
	s.NoError(s.repo.Delete(context.Background(), id))

	s.mock.ExpectExec("DELETE FROM runs").WithArgs(id.String()).WillReturnResult(sqlmock.NewResult(0, 0))
	s.True(pkgerrors.IsNotFound(s.repo.Delete(context.Background(), id)))
}

func TestRunRepoTestSuite(t *testing.T) {
	suite.Run(t, new(RunRepoTestSuite))
}
