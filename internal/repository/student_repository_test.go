package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var studentDetailColumns = []string{"id", "user_id", "enrollment_number", "birth_date", "address", "parent_phone", "parent_email",
	"class_id", "parent_id", "created_at", "updated_at", "full_name", "email", "class_name", "parent_name", "parent_account_email"}

func TestStudentRepositoryCountByClass(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM students WHERE class_id = $1")).
		WithArgs("c1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))

	count, err := repo.CountByClass(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 30, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryFindByIDWithParent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewStudentRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows(studentDetailColumns).
		AddRow("s1", "u1", "MAT-001", nil, nil, nil, "parent@example.com", "c1", "p1", now, now, "Awa Diop", "awa@example.com", "TS1", "Fatou Diop", "parent@example.com")
	mock.ExpectQuery(regexp.QuoteMeta("LEFT JOIN users p ON p.id = s.parent_id WHERE s.id = $1")).
		WithArgs("s1").
		WillReturnRows(rows)

	student, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, student.ParentID)
	assert.Equal(t, "p1", *student.ParentID)
	assert.Equal(t, "Fatou Diop", *student.ParentName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
