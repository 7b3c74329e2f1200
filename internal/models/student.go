package models

import "time"

// Student represents a learner enrolled in a class.
type Student struct {
	ID               string     `db:"id" json:"id"`
	UserID           string     `db:"user_id" json:"user_id"`
	EnrollmentNumber string     `db:"enrollment_number" json:"enrollment_number"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	ParentPhone      *string    `db:"parent_phone" json:"parent_phone,omitempty"`
	ParentEmail      *string    `db:"parent_email" json:"parent_email,omitempty"`
	ClassID          string     `db:"class_id" json:"class_id"`
	ParentID         *string    `db:"parent_id" json:"parent_id,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// StudentDetail joins the account fields of the student and linked parent.
type StudentDetail struct {
	Student
	FullName      string  `db:"full_name" json:"full_name"`
	Email         string  `db:"email" json:"email"`
	ClassName     string  `db:"class_name" json:"class_name"`
	ParentName    *string `db:"parent_name" json:"parent_name,omitempty"`
	ParentAccount *string `db:"parent_account_email" json:"parent_account_email,omitempty"`
}
