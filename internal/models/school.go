package models

import "time"

// School is a partner school hosting internship placements.
type School struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Phone     string    `db:"phone" json:"phone"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolTermQuota caps the number of concurrently active placements a school
// may hold for a given term.
type SchoolTermQuota struct {
	SchoolID  string    `db:"school_id" json:"school_id"`
	TermID    string    `db:"term_id" json:"term_id"`
	Quota     int       `db:"quota" json:"quota"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// SchoolFilter captures filtering criteria for listing schools.
type SchoolFilter struct {
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
