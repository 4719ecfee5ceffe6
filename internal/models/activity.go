package models

import "time"

// ActivityStatus tracks the review lifecycle of a teaching record.
type ActivityStatus string

const (
	ActivityStatusDraft     ActivityStatus = "DRAFT"
	ActivityStatusSubmitted ActivityStatus = "SUBMITTED"
	ActivityStatusReviewed  ActivityStatus = "REVIEWED"
)

// LessonPlan is a teaching record owned by a student's assignment.
type LessonPlan struct {
	ID           string         `db:"id" json:"id"`
	AssignmentID string         `db:"assignment_id" json:"assignment_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	Title        string         `db:"title" json:"title"`
	Subject      string         `db:"subject" json:"subject"`
	Description  string         `db:"description" json:"description"`
	AttachmentID *string        `db:"attachment_id" json:"attachment_id,omitempty"`
	Status       ActivityStatus `db:"status" json:"status"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// TeachingSession records a delivered lesson; its duration feeds the
// aggregate hour count.
type TeachingSession struct {
	ID           string         `db:"id" json:"id"`
	AssignmentID string         `db:"assignment_id" json:"assignment_id"`
	StudentID    string         `db:"student_id" json:"student_id"`
	LessonPlanID *string        `db:"lesson_plan_id" json:"lesson_plan_id,omitempty"`
	Topic        string         `db:"topic" json:"topic"`
	ClassName    string         `db:"class_name" json:"class_name"`
	StartTime    time.Time      `db:"start_time" json:"start_time"`
	EndTime      time.Time      `db:"end_time" json:"end_time"`
	Notes        string         `db:"notes" json:"notes"`
	Status       ActivityStatus `db:"status" json:"status"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at" json:"updated_at"`
}

// Attachment references a stored file for a teaching record.
type Attachment struct {
	ID        string    `db:"id" json:"id"`
	StudentID string    `db:"student_id" json:"student_id"`
	FileName  string    `db:"file_name" json:"file_name"`
	FilePath  string    `db:"file_path" json:"file_path"`
	MIMEType  string    `db:"mime_type" json:"mime_type"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ActivityStats aggregates a student's teaching records. It is computed from
// the ledger and frozen into completion requests at submission time.
type ActivityStats struct {
	TotalHours       float64 `db:"total_hours" json:"total_hours"`
	TotalLessonPlans int     `db:"total_lesson_plans" json:"total_lesson_plans"`
	TotalSessions    int     `db:"total_sessions" json:"total_sessions"`
}

// ActivityFilter provides filters for listing teaching records.
type ActivityFilter struct {
	AssignmentID string
	StudentID    string
	Status       ActivityStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
