package repository

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ppl-internship-api/internal/models"
)

func TestCompletionRepositoryCreateIfNoneOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM completion_requests WHERE assignment_id = $1 AND status IN ('PENDING', 'UNDER_REVIEW', 'REVISION_REQUIRED') FOR UPDATE`)).
		WithArgs("assign-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO completion_requests")).
		WithArgs(sqlmock.AnyArg(), "assign-1", "student-1", "done well", 120.5, 8, 16, "PENDING", sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	request := &models.CompletionRequest{
		AssignmentID:     "assign-1",
		StudentID:        "student-1",
		SelfEvaluation:   "done well",
		TotalHours:       120.5,
		TotalLessonPlans: 8,
		TotalSessions:    16,
	}
	err := repo.CreateIfNoneOpen(context.Background(), request)
	require.NoError(t, err)
	assert.NotEmpty(t, request.ID)
	assert.Equal(t, models.CompletionStatusPending, request.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryCreateIfNoneOpenBlocked(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id FROM completion_requests WHERE assignment_id = $1 AND status IN ('PENDING', 'UNDER_REVIEW', 'REVISION_REQUIRED') FOR UPDATE`)).
		WithArgs("assign-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("req-1"))
	mock.ExpectRollback()

	err := repo.CreateIfNoneOpen(context.Background(), &models.CompletionRequest{AssignmentID: "assign-1"})
	assert.ErrorIs(t, err, ErrOpenRequestExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositorySetTeacherReview(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE completion_requests SET teacher_score = $2")).
		WithArgs("req-1", 85, "good progress", "APPROVE", sqlmock.AnyArg(), "teacher-1", "UNDER_REVIEW").
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.SetTeacherReview(context.Background(), "req-1", TeacherReviewParams{
		Score:      85,
		Comments:   "good progress",
		Decision:   models.ReviewDecisionApprove,
		ReviewerID: "teacher-1",
		NewStatus:  models.CompletionStatusUnderReview,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositorySetSupervisorReviewApprove(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE completion_requests SET supervisor_scores = $2")).
		WithArgs("req-1", sqlmock.AnyArg(), 38, 3.8, "well rounded", "APPROVE", sqlmock.AnyArg(), "supervisor-1", "SUPERVISOR_APPROVED").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE assignments SET status = 'COMPLETED', updated_at = $2 WHERE id = $1`)).
		WithArgs("assign-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SetSupervisorReview(context.Background(), "req-1", SupervisorReviewParams{
		Scores:             []int64{3, 4, 5, 2, 3, 4, 5, 3, 4, 5},
		Total:              38,
		Average:            3.8,
		Comments:           "well rounded",
		Decision:           models.ReviewDecisionApprove,
		ReviewerID:         "supervisor-1",
		NewStatus:          models.CompletionStatusSupervisorApproved,
		CompleteAssignment: true,
		AssignmentID:       "assign-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositorySetSupervisorReviewReject(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE completion_requests SET supervisor_scores = $2")).
		WithArgs("req-1", sqlmock.AnyArg(), 20, 2.0, "insufficient hours", "REJECT", sqlmock.AnyArg(), "supervisor-1", "SUPERVISOR_REJECTED").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := repo.SetSupervisorReview(context.Background(), "req-1", SupervisorReviewParams{
		Scores:     []int64{2, 2, 2, 2, 2, 2, 2, 2, 2, 2},
		Total:      20,
		Average:    2.0,
		Comments:   "insufficient hours",
		Decision:   models.ReviewDecisionReject,
		ReviewerID: "supervisor-1",
		NewStatus:  models.CompletionStatusSupervisorRejected,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompletionRepositoryResubmit(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompletionRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE completion_requests SET total_hours = $2")).
		WithArgs("req-1", 140.0, 10, 20, "revised evaluation", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Resubmit(context.Background(), "req-1", models.ActivityStats{
		TotalHours:       140.0,
		TotalLessonPlans: 10,
		TotalSessions:    20,
	}, "revised evaluation")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
