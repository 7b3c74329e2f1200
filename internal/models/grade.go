package models

import "time"

// Evaluation types recognised by the label table; others pass through as-is.
const (
	EvaluationHomework      = "devoir"
	EvaluationTest          = "controle"
	EvaluationExam          = "examen"
	EvaluationParticipation = "participation"
)

// EvaluationLabel returns the display label of an evaluation type.
func EvaluationLabel(kind string) string {
	switch kind {
	case EvaluationHomework:
		return "Devoir"
	case EvaluationTest:
		return "Contrôle"
	case EvaluationExam:
		return "Examen"
	case EvaluationParticipation:
		return "Participation"
	}
	return kind
}

// Grade is one graded evaluation of a student in a subject.
type Grade struct {
	ID             string    `db:"id" json:"id"`
	StudentID      string    `db:"student_id" json:"student_id"`
	SubjectID      string    `db:"subject_id" json:"subject_id"`
	ClassID        string    `db:"class_id" json:"class_id"`
	Period         Period    `db:"period" json:"period"`
	Value          float64   `db:"value" json:"value"`
	EvaluationType string    `db:"evaluation_type" json:"evaluation_type"`
	Comment        *string   `db:"comment" json:"comment,omitempty"`
	GradedOn       time.Time `db:"graded_on" json:"graded_on"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// GradeWithSubject joins the subject columns needed for breakdowns.
type GradeWithSubject struct {
	Grade
	SubjectName        string  `db:"subject_name" json:"subject_name"`
	SubjectCode        string  `db:"subject_code" json:"subject_code"`
	SubjectCoefficient float64 `db:"subject_coefficient" json:"subject_coefficient"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	StudentID string
	SubjectID string
	ClassID   string
	Period    Period
	Page      int
	PageSize  int
}
