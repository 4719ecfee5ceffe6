package models

import "time"

// Semester identifies the half of the academic year a term covers.
type Semester string

const (
	SemesterOdd  Semester = "ODD"
	SemesterEven Semester = "EVEN"
)

// Term models an academic term of the internship calendar. At most one term
// is active system-wide; students may only apply during its registration window.
type Term struct {
	ID                string    `db:"id" json:"id"`
	Name              string    `db:"name" json:"name"`
	AcademicYear      string    `db:"academic_year" json:"academic_year"`
	Semester          Semester  `db:"semester" json:"semester"`
	StartDate         time.Time `db:"start_date" json:"start_date"`
	EndDate           time.Time `db:"end_date" json:"end_date"`
	RegistrationStart time.Time `db:"registration_start" json:"registration_start"`
	RegistrationEnd   time.Time `db:"registration_end" json:"registration_end"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	AcademicYear string
	Semester     Semester
	IsActive     *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
