package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "postgres")
	cleanup := func() {
		_ = sqlxDB.Close()
		db.Close()
	}
	return sqlxDB, mock, cleanup
}

func TestAssignmentRepositoryCreateWithinQuota(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quota FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 FOR UPDATE`)).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM assignments WHERE student_id = $1 AND status = 'ACTIVE' FOR UPDATE`)).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM assignments WHERE school_id = $1 AND term_id = $2 AND status = 'ACTIVE'`)).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignments")).
		WithArgs(sqlmock.AnyArg(), "student-1", "school-1", nil, "term-1", sqlmock.AnyArg(), "ACTIVE", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	assignment := &models.Assignment{
		StudentID: "student-1",
		SchoolID:  "school-1",
		TermID:    "term-1",
	}
	err := repo.CreateWithinQuota(context.Background(), assignment)
	require.NoError(t, err)
	assert.NotEmpty(t, assignment.ID)
	assert.Equal(t, models.AssignmentStatusActive, assignment.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The quota row lock is what keeps two simultaneous applications from both
// seeing a free slot: once the count under the held lock reaches the quota
// the insert must not happen.
func TestAssignmentRepositoryCreateWithinQuotaSaturated(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quota FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 FOR UPDATE`)).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM assignments WHERE student_id = $1 AND status = 'ACTIVE' FOR UPDATE`)).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM assignments WHERE school_id = $1 AND term_id = $2 AND status = 'ACTIVE'`)).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.CreateWithinQuota(context.Background(), &models.Assignment{
		StudentID: "student-1",
		SchoolID:  "school-1",
		TermID:    "term-1",
	})
	assert.ErrorIs(t, err, ErrQuotaSaturated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreateWithinQuotaNoQuotaRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quota FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 FOR UPDATE`)).
		WithArgs("school-1", "term-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	err := repo.CreateWithinQuota(context.Background(), &models.Assignment{
		StudentID: "student-1",
		SchoolID:  "school-1",
		TermID:    "term-1",
	})
	assert.ErrorIs(t, err, ErrNoQuota)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCreateWithinQuotaDuplicateActive(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT quota FROM school_term_quotas WHERE school_id = $1 AND term_id = $2 FOR UPDATE`)).
		WithArgs("school-1", "term-1").
		WillReturnRows(sqlmock.NewRows([]string{"quota"}).AddRow(5))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM assignments WHERE student_id = $1 AND status = 'ACTIVE' FOR UPDATE`)).
		WithArgs("student-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("assign-1"))
	mock.ExpectRollback()

	err := repo.CreateWithinQuota(context.Background(), &models.Assignment{
		StudentID: "student-1",
		SchoolID:  "school-1",
		TermID:    "term-1",
	})
	assert.ErrorIs(t, err, ErrDuplicateActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindActiveByStudentNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("student-99").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByStudent(context.Background(), "student-99")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestAssignmentRepositoryHasTeachingRecords(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 WHERE EXISTS")).
		WithArgs("assign-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	has, err := repo.HasTeachingRecords(context.Background(), "assign-1")
	require.NoError(t, err)
	assert.True(t, has)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 WHERE EXISTS")).
		WithArgs("assign-2").
		WillReturnError(sql.ErrNoRows)

	has, err = repo.HasTeachingRecords(context.Background(), "assign-2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAssignmentRepositorySetTeacher(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignments SET teacher_id = $2, updated_at = $3 WHERE id = $1`)).
		WithArgs("assign-1", "teacher-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SetTeacher(context.Background(), "assign-1", "teacher-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
