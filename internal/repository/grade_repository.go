package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bulletin-api/internal/models"
)

const gradeColumns = `g.id, g.student_id, g.subject_id, g.class_id, g.period, g.value, g.evaluation_type, g.comment, g.graded_on, g.created_at, g.updated_at`

const gradeWithSubjectQuery = `SELECT ` + gradeColumns + `, sub.name AS subject_name, sub.code AS subject_code, sub.coefficient AS subject_coefficient
        FROM grades g
        JOIN subjects sub ON sub.id = g.subject_id`

// GradeRepository handles grade entry persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository creates a new grade repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// List returns grade entries matching the filter with the total count.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	where := " WHERE 1=1"
	var args []interface{}
	if filter.StudentID != "" {
		where += fmt.Sprintf(" AND g.student_id = $%d", len(args)+1)
		args = append(args, filter.StudentID)
	}
	if filter.SubjectID != "" {
		where += fmt.Sprintf(" AND g.subject_id = $%d", len(args)+1)
		args = append(args, filter.SubjectID)
	}
	if filter.ClassID != "" {
		where += fmt.Sprintf(" AND g.class_id = $%d", len(args)+1)
		args = append(args, filter.ClassID)
	}
	if filter.Period != "" {
		where += fmt.Sprintf(" AND g.period = $%d", len(args)+1)
		args = append(args, filter.Period)
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}

	query := fmt.Sprintf("SELECT %s FROM grades g%s ORDER BY g.graded_on DESC, g.id LIMIT %d OFFSET %d", gradeColumns, where, size, (page-1)*size)
	var grades []models.Grade
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM grades g"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade by identifier.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, "SELECT "+gradeColumns+" FROM grades g WHERE g.id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find grade: %w", err)
	}
	return &grade, nil
}

// ListByStudentPeriod returns a student's grades for a period, grouped by
// subject and ordered by grading date.
func (r *GradeRepository) ListByStudentPeriod(ctx context.Context, studentID string, period models.Period) ([]models.GradeWithSubject, error) {
	query := gradeWithSubjectQuery + ` WHERE g.student_id = $1 AND g.period = $2 ORDER BY sub.name, g.subject_id, g.graded_on, g.id`
	var grades []models.GradeWithSubject
	if err := r.db.SelectContext(ctx, &grades, query, studentID, period); err != nil {
		return nil, fmt.Errorf("list student grades: %w", err)
	}
	return grades, nil
}

// ListByClassPeriod returns the period grades of every student currently in
// the class, keyed by student id.
func (r *GradeRepository) ListByClassPeriod(ctx context.Context, classID string, period models.Period) (map[string][]models.GradeWithSubject, error) {
	query := gradeWithSubjectQuery + `
        JOIN students s ON s.id = g.student_id
        WHERE s.class_id = $1 AND g.period = $2
        ORDER BY g.student_id, sub.name, g.graded_on, g.id`
	rows, err := r.db.QueryxContext(ctx, query, classID, period)
	if err != nil {
		return nil, fmt.Errorf("list class grades: %w", err)
	}
	defer rows.Close()
	result := make(map[string][]models.GradeWithSubject)
	for rows.Next() {
		var grade models.GradeWithSubject
		if err := rows.StructScan(&grade); err != nil {
			return nil, fmt.Errorf("scan grade: %w", err)
		}
		result[grade.StudentID] = append(result[grade.StudentID], grade)
	}
	return result, rows.Err()
}

// Create inserts a grade.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	if grade.GradedOn.IsZero() {
		grade.GradedOn = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, student_id, subject_id, class_id, period, value, evaluation_type, comment, graded_on, created_at, updated_at)
        VALUES (:id, :student_id, :subject_id, :class_id, :period, :value, :evaluation_type, :comment, :graded_on, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// Update writes the mutable fields of a grade.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET value = :value, evaluation_type = :evaluation_type, comment = :comment, graded_on = :graded_on, updated_at = :updated_at
        WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	return expectAffected(res)
}

// Delete removes a grade.
func (r *GradeRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM grades WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	return expectAffected(res)
}
