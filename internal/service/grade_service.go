package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/models"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
)

type gradeRepo interface {
	List(ctx context.Context, filter models.GradeFilter) ([]models.Grade, int, error)
	FindByID(ctx context.Context, id string) (*models.Grade, error)
	Create(ctx context.Context, grade *models.Grade) error
	Update(ctx context.Context, grade *models.Grade) error
	Delete(ctx context.Context, id string) error
}

type gradeStudentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type subjectReader interface {
	FindByID(ctx context.Context, id string) (*models.Subject, error)
}

// CreateGradeRequest represents a single grade entry payload.
type CreateGradeRequest struct {
	StudentID      string        `json:"student_id" validate:"required"`
	SubjectID      string        `json:"subject_id" validate:"required"`
	Period         models.Period `json:"period" validate:"required"`
	Value          *float64      `json:"value" validate:"required,gte=0,lte=20"`
	EvaluationType string        `json:"evaluation_type" validate:"omitempty,max=255"`
	Comment        *string       `json:"comment" validate:"omitempty,max=2000"`
	GradedOn       *time.Time    `json:"graded_on"`
}

// UpdateGradeRequest applies only the supplied fields.
type UpdateGradeRequest struct {
	Value          *float64   `json:"value" validate:"omitempty,gte=0,lte=20"`
	EvaluationType *string    `json:"evaluation_type" validate:"omitempty,min=1,max=255"`
	Comment        *string    `json:"comment" validate:"omitempty,max=2000"`
	GradedOn       *time.Time `json:"graded_on"`
}

// GradeListRequest captures list query parameters.
type GradeListRequest struct {
	StudentID string `form:"student_id"`
	SubjectID string `form:"subject_id"`
	ClassID   string `form:"class_id"`
	Period    string `form:"period"`
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
}

// GradeActor identifies who is entering grades. Teachers may only grade
// subjects assigned to them.
type GradeActor struct {
	UserID string
	Role   models.UserRole
}

// GradeService handles grade entry. Editing grades never touches existing
// bulletins: they are snapshots until recomputed explicitly.
type GradeService struct {
	grades    gradeRepo
	students  gradeStudentReader
	subjects  subjectReader
	inbox     inboxWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewGradeService constructs GradeService.
func NewGradeService(grades gradeRepo, students gradeStudentReader, subjects subjectReader, inbox inboxWriter, validate *validator.Validate, logger *zap.Logger) *GradeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradeService{grades: grades, students: students, subjects: subjects, inbox: inbox, validator: validate, logger: logger}
}

// List returns grade entries.
func (s *GradeService) List(ctx context.Context, req GradeListRequest) ([]models.Grade, *models.Pagination, error) {
	filter := models.GradeFilter{
		StudentID: req.StudentID,
		SubjectID: req.SubjectID,
		ClassID:   req.ClassID,
		Period:    models.Period(req.Period),
		Page:      req.Page,
		PageSize:  req.PageSize,
	}
	if filter.Period != "" && !filter.Period.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid period filter")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 200 {
		filter.PageSize = 50
	}
	grades, total, err := s.grades.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list grades")
	}
	return grades, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

// Create records a grade for the student's current class.
func (s *GradeService) Create(ctx context.Context, req CreateGradeRequest, actor GradeActor) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	if !req.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must be one of trimestre_1, trimestre_2, trimestre_3")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	subject, err := s.subjectFor(ctx, req.SubjectID, actor)
	if err != nil {
		return nil, err
	}

	kind := strings.ToLower(strings.TrimSpace(req.EvaluationType))
	if kind == "" {
		kind = models.EvaluationHomework
	}
	grade := &models.Grade{
		StudentID:      student.ID,
		SubjectID:      subject.ID,
		ClassID:        student.ClassID,
		Period:         req.Period,
		Value:          round2(*req.Value).InexactFloat64(),
		EvaluationType: kind,
		Comment:        req.Comment,
	}
	if req.GradedOn != nil {
		grade.GradedOn = req.GradedOn.UTC()
	}
	if err := s.grades.Create(ctx, grade); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create grade")
	}

	s.notifyStudent(ctx, student, subject, grade, actor.UserID)
	return grade, nil
}

// Update changes a grade. Bulletins already computed keep their values.
func (s *GradeService) Update(ctx context.Context, id string, req UpdateGradeRequest, actor GradeActor) (*models.Grade, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grade payload")
	}
	grade, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.subjectFor(ctx, grade.SubjectID, actor); err != nil {
		return nil, err
	}

	if req.Value != nil {
		grade.Value = round2(*req.Value).InexactFloat64()
	}
	if req.EvaluationType != nil {
		grade.EvaluationType = strings.ToLower(strings.TrimSpace(*req.EvaluationType))
	}
	if req.Comment != nil {
		grade.Comment = req.Comment
	}
	if req.GradedOn != nil {
		grade.GradedOn = req.GradedOn.UTC()
	}
	if err := s.grades.Update(ctx, grade); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update grade")
	}
	return grade, nil
}

// Delete removes a grade.
func (s *GradeService) Delete(ctx context.Context, id string, actor GradeActor) error {
	grade, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.subjectFor(ctx, grade.SubjectID, actor); err != nil {
		return err
	}
	if err := s.grades.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete grade")
	}
	return nil
}

func (s *GradeService) find(ctx context.Context, id string) (*models.Grade, error) {
	grade, err := s.grades.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "grade not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grade")
	}
	return grade, nil
}

func (s *GradeService) subjectFor(ctx context.Context, subjectID string, actor GradeActor) (*models.Subject, error) {
	subject, err := s.subjects.FindByID(ctx, subjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if actor.Role == models.RoleTeacher && (subject.TeacherID == nil || *subject.TeacherID != actor.UserID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "subject is not assigned to this teacher")
	}
	return subject, nil
}

func (s *GradeService) notifyStudent(ctx context.Context, student *models.StudentDetail, subject *models.Subject, grade *models.Grade, actorID string) {
	if s.inbox == nil {
		return
	}
	link := "/notes/" + grade.ID
	notice := &models.Notification{
		UserID:   student.UserID,
		Title:    "Nouvelle note ajoutée",
		Message:  fmt.Sprintf("Une nouvelle note (%.2f/20) a été ajoutée en %s.", grade.Value, subject.Name),
		Type:     models.NotificationGrade,
		Priority: models.PriorityNormal,
		Metadata: metadata(map[string]interface{}{
			"note_id": grade.ID,
			"valeur":  grade.Value,
			"matiere": subject.Name,
		}),
		ActionLink: &link,
	}
	if actorID != "" {
		notice.SenderID = &actorID
	}
	if err := s.inbox.Notify(ctx, notice); err != nil {
		s.logger.Warn("failed to notify student of new grade", zap.String("grade_id", grade.ID), zap.Error(err))
	}
}
