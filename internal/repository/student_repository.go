package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bulletin-api/internal/models"
)

const studentDetailQuery = `SELECT s.id, s.user_id, s.enrollment_number, s.birth_date, s.address, s.parent_phone, s.parent_email,
        s.class_id, s.parent_id, s.created_at, s.updated_at,
        u.full_name, u.email, c.name AS class_name,
        p.full_name AS parent_name, p.email AS parent_account_email
        FROM students s
        JOIN users u ON u.id = s.user_id
        JOIN classes c ON c.id = s.class_id
        LEFT JOIN users p ON p.id = s.parent_id`

// StudentRepository reads students together with their accounts.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student with account, class and parent context.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.StudentDetail, error) {
	return r.findOne(ctx, studentDetailQuery+" WHERE s.id = $1", id)
}

// FindByUserID resolves the student record behind a STUDENT account.
func (r *StudentRepository) FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error) {
	return r.findOne(ctx, studentDetailQuery+" WHERE s.user_id = $1", userID)
}

func (r *StudentRepository) findOne(ctx context.Context, query string, arg string) (*models.StudentDetail, error) {
	var student models.StudentDetail
	if err := r.db.GetContext(ctx, &student, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find student: %w", err)
	}
	return &student, nil
}

// ListByClass returns the students currently enrolled in a class.
func (r *StudentRepository) ListByClass(ctx context.Context, classID string) ([]models.StudentDetail, error) {
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, studentDetailQuery+" WHERE s.class_id = $1 ORDER BY u.full_name, s.id", classID); err != nil {
		return nil, fmt.Errorf("list class students: %w", err)
	}
	return students, nil
}

// CountByClass returns the class headcount.
func (r *StudentRepository) CountByClass(ctx context.Context, classID string) (int, error) {
	var count int
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM students WHERE class_id = $1`, classID); err != nil {
		return 0, fmt.Errorf("count class students: %w", err)
	}
	return count, nil
}

// ListByParent returns the children linked to a parent account.
func (r *StudentRepository) ListByParent(ctx context.Context, parentID string) ([]models.StudentDetail, error) {
	var students []models.StudentDetail
	if err := r.db.SelectContext(ctx, &students, studentDetailQuery+" WHERE s.parent_id = $1 ORDER BY u.full_name", parentID); err != nil {
		return nil, fmt.Errorf("list parent students: %w", err)
	}
	return students, nil
}

// ListMissingParent returns students with a parent email but no parent account.
func (r *StudentRepository) ListMissingParent(ctx context.Context) ([]models.StudentDetail, error) {
	var students []models.StudentDetail
	query := studentDetailQuery + " WHERE s.parent_id IS NULL AND s.parent_email IS NOT NULL AND s.parent_email <> '' ORDER BY s.parent_email"
	if err := r.db.SelectContext(ctx, &students, query); err != nil {
		return nil, fmt.Errorf("list students missing parent: %w", err)
	}
	return students, nil
}

// LinkParent attaches a parent account to a student.
func (r *StudentRepository) LinkParent(ctx context.Context, studentID, parentID string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE students SET parent_id = $2, updated_at = $3 WHERE id = $1`, studentID, parentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("link parent: %w", err)
	}
	return expectAffected(res)
}
