package models

import (
	"time"

	"github.com/lib/pq"
)

// CompletionStatus represents the workflow state of a completion request.
type CompletionStatus string

// Workflow states. PENDING, UNDER_REVIEW and REVISION_REQUIRED are
// non-terminal; the rest are terminal and kept for history.
const (
	CompletionStatusPending            CompletionStatus = "PENDING"
	CompletionStatusUnderReview        CompletionStatus = "UNDER_REVIEW"
	CompletionStatusRevisionRequired   CompletionStatus = "REVISION_REQUIRED"
	CompletionStatusRejected           CompletionStatus = "REJECTED"
	CompletionStatusSupervisorApproved CompletionStatus = "SUPERVISOR_APPROVED"
	CompletionStatusSupervisorRejected CompletionStatus = "SUPERVISOR_REJECTED"
)

// Terminal reports whether the status permits no further transitions.
func (s CompletionStatus) Terminal() bool {
	switch s {
	case CompletionStatusRejected, CompletionStatusSupervisorApproved, CompletionStatusSupervisorRejected:
		return true
	}
	return false
}

// ReviewDecision is the outcome of a review submission.
type ReviewDecision string

const (
	ReviewDecisionApprove ReviewDecision = "APPROVE"
	ReviewDecisionReject  ReviewDecision = "REJECT"
	ReviewDecisionRevise  ReviewDecision = "REVISE"
)

// SupervisorCriteriaCount is the fixed size of the supervisor rubric.
const SupervisorCriteriaCount = 10

// CompletionRequest is a student's end-of-term petition asserting the
// internship is finished. Activity stats are snapshotted at submission time
// and never recomputed.
type CompletionRequest struct {
	ID             string `db:"id" json:"id"`
	AssignmentID   string `db:"assignment_id" json:"assignment_id"`
	StudentID      string `db:"student_id" json:"student_id"`
	SelfEvaluation string `db:"self_evaluation" json:"self_evaluation"`

	TotalHours       float64 `db:"total_hours" json:"total_hours"`
	TotalLessonPlans int     `db:"total_lesson_plans" json:"total_lesson_plans"`
	TotalSessions    int     `db:"total_sessions" json:"total_sessions"`

	Status      CompletionStatus `db:"status" json:"status"`
	SubmittedAt time.Time        `db:"submitted_at" json:"submitted_at"`

	TeacherScore      *int            `db:"teacher_score" json:"teacher_score,omitempty"`
	TeacherComments   *string         `db:"teacher_comments" json:"teacher_comments,omitempty"`
	TeacherDecision   *ReviewDecision `db:"teacher_decision" json:"teacher_decision,omitempty"`
	TeacherReviewedAt *time.Time      `db:"teacher_reviewed_at" json:"teacher_reviewed_at,omitempty"`
	TeacherReviewerID *string         `db:"teacher_reviewer_id" json:"teacher_reviewer_id,omitempty"`

	SupervisorScores     pq.Int64Array   `db:"supervisor_scores" json:"supervisor_scores,omitempty"`
	SupervisorTotal      *int            `db:"supervisor_total" json:"supervisor_total,omitempty"`
	SupervisorAverage    *float64        `db:"supervisor_average" json:"supervisor_average,omitempty"`
	SupervisorComments   *string         `db:"supervisor_comments" json:"supervisor_comments,omitempty"`
	SupervisorDecision   *ReviewDecision `db:"supervisor_decision" json:"supervisor_decision,omitempty"`
	SupervisorReviewedAt *time.Time      `db:"supervisor_reviewed_at" json:"supervisor_reviewed_at,omitempty"`
	SupervisorReviewerID *string         `db:"supervisor_reviewer_id" json:"supervisor_reviewer_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Snapshot returns the frozen activity stats carried by the request.
func (r *CompletionRequest) Snapshot() ActivityStats {
	return ActivityStats{
		TotalHours:       r.TotalHours,
		TotalLessonPlans: r.TotalLessonPlans,
		TotalSessions:    r.TotalSessions,
	}
}

// CompletionRequestDetail enriches the request with assignment context.
type CompletionRequestDetail struct {
	CompletionRequest
	StudentName string  `db:"student_name" json:"student_name"`
	SchoolName  string  `db:"school_name" json:"school_name"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
	TermName    string  `db:"term_name" json:"term_name"`
}

// CompletionFilter provides filters for listing completion requests.
type CompletionFilter struct {
	AssignmentID string
	StudentID    string
	TeacherID    string
	Status       CompletionStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
