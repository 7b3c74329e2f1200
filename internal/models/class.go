package models

import "time"

// Class represents a class of students for one school year.
type Class struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Level         string    `db:"level" json:"level"`
	SchoolYear    string    `db:"school_year" json:"school_year"`
	LeadTeacherID *string   `db:"lead_teacher_id" json:"lead_teacher_id,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}
