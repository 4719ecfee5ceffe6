package models

import "time"

// AssignmentStatus represents the lifecycle of an internship assignment.
type AssignmentStatus string

// Possible assignment statuses.
const (
	AssignmentStatusActive    AssignmentStatus = "ACTIVE"
	AssignmentStatusCancelled AssignmentStatus = "CANCELLED"
	AssignmentStatusCompleted AssignmentStatus = "COMPLETED"
)

// Assignment binds one student to one school, one mentor teacher and one term.
// A student holds at most one ACTIVE assignment at a time.
type Assignment struct {
	ID             string           `db:"id" json:"id"`
	StudentID      string           `db:"student_id" json:"student_id"`
	SchoolID       string           `db:"school_id" json:"school_id"`
	TeacherID      *string          `db:"teacher_id" json:"teacher_id,omitempty"`
	TermID         string           `db:"term_id" json:"term_id"`
	EnrollmentDate time.Time        `db:"enrollment_date" json:"enrollment_date"`
	Status         AssignmentStatus `db:"status" json:"status"`
	Notes          string           `db:"notes" json:"notes"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time        `db:"updated_at" json:"updated_at"`
}

// AssignmentDetail enriches Assignment with student, school and term info.
type AssignmentDetail struct {
	Assignment
	StudentName string  `db:"student_name" json:"student_name"`
	SchoolName  string  `db:"school_name" json:"school_name"`
	TeacherName *string `db:"teacher_name" json:"teacher_name,omitempty"`
	TermName    string  `db:"term_name" json:"term_name"`
}

// AssignmentFilter provides filters for listing assignments.
type AssignmentFilter struct {
	StudentID string
	SchoolID  string
	TeacherID string
	TermID    string
	Status    AssignmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
