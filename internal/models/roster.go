package models

import "time"

// RosterEntry binds a mentor teacher to a school for a term. A teacher holds
// at most one roster entry per term.
type RosterEntry struct {
	ID        string    `db:"id" json:"id"`
	SchoolID  string    `db:"school_id" json:"school_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	IsPrimary bool      `db:"is_primary" json:"is_primary"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// RosterEntryDetail enriches roster entries with descriptive fields.
type RosterEntryDetail struct {
	RosterEntry
	SchoolName  string `db:"school_name" json:"school_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
	TermName    string `db:"term_name" json:"term_name"`
}
