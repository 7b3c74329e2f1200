package models

import "time"

// Subject represents an academic subject. Coefficient is informational and
// never weights the overall average.
type Subject struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Code        string    `db:"code" json:"code"`
	Coefficient float64   `db:"coefficient" json:"coefficient"`
	Level       *string   `db:"level" json:"level,omitempty"`
	TeacherID   *string   `db:"teacher_id" json:"teacher_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}
