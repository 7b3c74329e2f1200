package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
)

type mockGradeRepo struct {
	storedGrades map[string]models.Grade
}

func (m *mockGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error) {
	var result []models.Grade
	for _, g := range m.storedGrades {
		if filter.StudentID != "" && filter.StudentID != g.StudentID {
			continue
		}
		if filter.Period != "" && filter.Period != g.Period {
			continue
		}
		result = append(result, g)
	}
	return result, len(result), nil
}

func (m *mockGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	g, ok := m.storedGrades[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &g, nil
}

func (m *mockGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	if m.storedGrades == nil {
		m.storedGrades = make(map[string]models.Grade)
	}
	grade.ID = uuid.NewString()
	m.storedGrades[grade.ID] = *grade
	return nil
}

func (m *mockGradeRepo) Update(ctx context.Context, grade *models.Grade) error {
	if _, ok := m.storedGrades[grade.ID]; !ok {
		return sql.ErrNoRows
	}
	m.storedGrades[grade.ID] = *grade
	return nil
}

func (m *mockGradeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := m.storedGrades[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.storedGrades, id)
	return nil
}

type mockSubjectRepo map[string]models.Subject

func (m mockSubjectRepo) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	s, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func ptrFloat(v float64) *float64 {
	return &v
}

func newGradeServiceFixture() (*GradeService, *mockGradeRepo, *memoryInbox) {
	f := newSchoolFixture()
	f.addClass("C")
	f.addStudent("stu", "C", "Awa", nil)
	teacher := "teacher-1"
	subjects := mockSubjectRepo{
		"maths":   {ID: "maths", Name: "Mathématiques", TeacherID: &teacher},
		"history": {ID: "history", Name: "Histoire"},
	}
	repo := &mockGradeRepo{}
	inbox := &memoryInbox{}
	svc := NewGradeService(repo, fixtureStudents{f}, subjects, NewNotificationService(inbox, nil), validator.New(), zap.NewNop())
	return svc, repo, inbox
}

var gradeAdmin = GradeActor{UserID: "gradeAdmin-1", Role: models.RoleAdmin}

func TestGradeServiceCreate(t *testing.T) {
	svc, repo, inbox := newGradeServiceFixture()
	graded := time.Date(2025, 10, 3, 0, 0, 0, 0, time.UTC)

	grade, err := svc.Create(context.Background(), CreateGradeRequest{
		StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm1, Value: ptrFloat(0), GradedOn: &graded,
	}, gradeAdmin)
	require.NoError(t, err)
	assert.Equal(t, "C", grade.ClassID)
	assert.Equal(t, models.EvaluationHomework, grade.EvaluationType)
	assert.Equal(t, 0.0, grade.Value)
	assert.Equal(t, graded, grade.GradedOn)
	assert.Len(t, repo.storedGrades, 1)

	require.Len(t, inbox.items, 1)
	assert.Equal(t, "user-stu", inbox.items[0].UserID)
	assert.Equal(t, models.NotificationGrade, inbox.items[0].Type)
	assert.Equal(t, "/notes/"+grade.ID, *inbox.items[0].ActionLink)
}

func TestGradeServiceCreateValidation(t *testing.T) {
	svc, _, _ := newGradeServiceFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm1, Value: ptrFloat(20.5)}, gradeAdmin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm1}, gradeAdmin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: "trimestre_4", Value: ptrFloat(12)}, gradeAdmin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(ctx, CreateGradeRequest{StudentID: "ghost", SubjectID: "maths", Period: models.PeriodTerm1, Value: ptrFloat(12)}, gradeAdmin)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestGradeServiceTeacherScope(t *testing.T) {
	svc, _, _ := newGradeServiceFixture()
	teacher := GradeActor{UserID: "teacher-1", Role: models.RoleTeacher}
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm1, Value: ptrFloat(14)}, teacher)
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "history", Period: models.PeriodTerm1, Value: ptrFloat(14)}, teacher)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestGradeServiceUpdateAndDelete(t *testing.T) {
	svc, repo, _ := newGradeServiceFixture()
	ctx := context.Background()
	grade, err := svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm1, Value: ptrFloat(11)}, gradeAdmin)
	require.NoError(t, err)

	kind := " Examen "
	updated, err := svc.Update(ctx, grade.ID, UpdateGradeRequest{Value: ptrFloat(15.255), EvaluationType: &kind}, gradeAdmin)
	require.NoError(t, err)
	assert.Equal(t, 15.26, updated.Value)
	assert.Equal(t, models.EvaluationExam, updated.EvaluationType)
	assert.Equal(t, models.PeriodTerm1, repo.storedGrades[grade.ID].Period)

	_, err = svc.Update(ctx, grade.ID, UpdateGradeRequest{Value: ptrFloat(-1)}, gradeAdmin)
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	require.NoError(t, svc.Delete(ctx, grade.ID, gradeAdmin))
	assert.ErrorIs(t, svc.Delete(ctx, grade.ID, gradeAdmin), appErrors.ErrNotFound)
}

func TestGradeServiceList(t *testing.T) {
	svc, _, _ := newGradeServiceFixture()
	ctx := context.Background()
	_, err := svc.Create(ctx, CreateGradeRequest{StudentID: "stu", SubjectID: "maths", Period: models.PeriodTerm2, Value: ptrFloat(9)}, gradeAdmin)
	require.NoError(t, err)

	grades, page, err := svc.List(ctx, GradeListRequest{StudentID: "stu", Period: "trimestre_2"})
	require.NoError(t, err)
	assert.Len(t, grades, 1)
	assert.Equal(t, 50, page.PageSize)

	_, _, err = svc.List(ctx, GradeListRequest{Period: "term"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}
