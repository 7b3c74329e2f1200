package models

import (
	"strings"
	"time"
)

// Mention is the qualitative band derived from an average.
type Mention string

const (
	MentionExcellent    Mention = "Excellent"
	MentionVeryGood     Mention = "Très bien"
	MentionGood         Mention = "Bien"
	MentionFairlyGood   Mention = "Assez bien"
	MentionPass         Mention = "Passable"
	MentionInsufficient Mention = "Insuffisant"
)

// Mentions lists bands from best to worst.
var Mentions = []Mention{MentionExcellent, MentionVeryGood, MentionGood, MentionFairlyGood, MentionPass, MentionInsufficient}

// Valid reports whether m is one of the six bands.
func (m Mention) Valid() bool {
	for _, known := range Mentions {
		if m == known {
			return true
		}
	}
	return false
}

// Bulletin is a per-student, per-period report card snapshot.
type Bulletin struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	Period        Period     `db:"period" json:"period"`
	SchoolYear    string     `db:"school_year" json:"school_year"`
	Average       float64    `db:"average" json:"average"`
	Mention       Mention    `db:"mention" json:"mention"`
	Rank          int        `db:"rank" json:"rank"`
	TotalStudents int        `db:"total_students" json:"total_students"`
	Published     bool       `db:"published" json:"published"`
	Remark        *string    `db:"remark" json:"remark,omitempty"`
	PDFPath       *string    `db:"pdf_path" json:"-"`
	PublishedAt   *time.Time `db:"published_at" json:"published_at,omitempty"`
	PublishedBy   *string    `db:"published_by" json:"published_by,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// BulletinDetail adds student and class context to a bulletin.
type BulletinDetail struct {
	Bulletin
	StudentName      string `db:"student_name" json:"student_name"`
	EnrollmentNumber string `db:"enrollment_number" json:"enrollment_number"`
	ClassID          string `db:"class_id" json:"class_id"`
	ClassName        string `db:"class_name" json:"class_name"`
}

// BulletinView is the detail payload including the per-subject breakdown.
type BulletinView struct {
	BulletinDetail
	Subjects []SubjectSummary `json:"subjects"`
}

// BulletinFilter captures list criteria. Nil pointers are not applied.
type BulletinFilter struct {
	StudentIDs []string
	ClassID    string
	Period     Period
	SchoolYear string
	Published  *bool
	Search     string
	Page       int
	PageSize   int
	SortBy     string
	SortOrder  string
}

// RankScope identifies the set of bulletins ranked together.
type RankScope struct {
	ClassID    string `json:"class_id"`
	Period     Period `json:"period"`
	SchoolYear string `json:"school_year"`
}

// Key is a stable identifier for locks and cache entries.
func (s RankScope) Key() string {
	return strings.Join([]string{s.ClassID, string(s.Period), s.SchoolYear}, "|")
}

// RankAssignment is the ranking engine's output for one bulletin.
type RankAssignment struct {
	BulletinID string `json:"bulletin_id"`
	Rank       int    `json:"rank"`
}

// RankingEntry is one row of a class ranking board.
type RankingEntry struct {
	BulletinID       string  `db:"id" json:"bulletin_id"`
	StudentID        string  `db:"student_id" json:"student_id"`
	StudentName      string  `db:"student_name" json:"student_name"`
	EnrollmentNumber string  `db:"enrollment_number" json:"enrollment_number"`
	Average          float64 `db:"average" json:"average"`
	Mention          Mention `db:"mention" json:"mention"`
	Rank             int     `db:"rank" json:"rank"`
	TotalStudents    int     `db:"total_students" json:"total_students"`
	Published        bool    `db:"published" json:"published"`
}

// SubjectSummary is the per-subject breakdown row of a bulletin.
type SubjectSummary struct {
	SubjectID   string      `json:"subject_id"`
	SubjectName string      `json:"subject_name"`
	SubjectCode string      `json:"subject_code"`
	Average     float64     `json:"average"`
	Coefficient float64     `json:"coefficient"`
	Count       int         `json:"grade_count"`
	Min         float64     `json:"min"`
	Max         float64     `json:"max"`
	Grades      []GradeLine `json:"grades"`
}

// GradeLine is a single grade as shown inside a subject summary.
type GradeLine struct {
	ID             string    `json:"id"`
	Value          float64   `json:"value"`
	EvaluationType string    `json:"evaluation_type"`
	TypeLabel      string    `json:"type_label"`
	Comment        *string   `json:"comment,omitempty"`
	GradedOn       time.Time `json:"graded_on"`
}
