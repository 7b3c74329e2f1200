package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/internal/repository"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
)

type parentAccounts interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type parentLinker interface {
	ListMissingParent(ctx context.Context) ([]models.StudentDetail, error)
	LinkParent(ctx context.Context, studentID, parentID string) error
}

type bulletinCatalog interface {
	List(ctx context.Context, req BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.BulletinView, error)
	RecalculateAll(ctx context.Context) ([]RecalculateResult, error)
}

// ParentLinkReport summarises a create-missing-parents run.
type ParentLinkReport struct {
	Created int
	Linked  int
	Errors  []string
}

// DetailReport is the recomputed breakdown of one bulletin. Err is set when
// the breakdown could not be built.
type DetailReport struct {
	Bulletin models.BulletinDetail
	Subjects []models.SubjectSummary
	Err      error
}

// MaintenanceService backs the operator commands.
type MaintenanceService struct {
	users    parentAccounts
	students parentLinker
	catalog  bulletinCatalog
	logger   *zap.Logger
}

// NewMaintenanceService constructs MaintenanceService.
func NewMaintenanceService(users parentAccounts, students parentLinker, catalog bulletinCatalog, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{users: users, students: students, catalog: catalog, logger: logger}
}

// CreateMissingParents creates a PARENT account for every distinct parent
// email that has none yet and links the students to it. Accounts that
// already exist are reused.
func (s *MaintenanceService) CreateMissingParents(ctx context.Context, defaultPassword string) (*ParentLinkReport, error) {
	if len(defaultPassword) < 8 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "default password must be at least 8 characters")
	}
	students, err := s.students.ListMissingParent(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students without parent")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(defaultPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	report := &ParentLinkReport{}
	for _, student := range students {
		if student.ParentEmail == nil {
			continue
		}
		email := strings.ToLower(strings.TrimSpace(*student.ParentEmail))
		if email == "" {
			continue
		}
		parent, created, err := s.parentFor(ctx, email, student, string(hash))
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", student.FullName, err))
			continue
		}
		if created {
			report.Created++
			s.logger.Info("parent account created", zap.String("email", email), zap.String("student_id", student.ID))
		}
		if err := s.students.LinkParent(ctx, student.ID, parent.ID); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", student.FullName, err))
			continue
		}
		report.Linked++
	}
	return report, nil
}

func (s *MaintenanceService) parentFor(ctx context.Context, email string, student models.StudentDetail, hash string) (*models.User, bool, error) {
	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != models.RoleParent {
			return nil, false, fmt.Errorf("email %s belongs to a %s account", email, existing.Role)
		}
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, err
	}

	parent := &models.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     "Parent de " + student.FullName,
		Role:         models.RoleParent,
		Active:       true,
	}
	if err := s.users.Create(ctx, parent); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			// created concurrently
			existing, err := s.users.FindByEmail(ctx, email)
			return existing, false, err
		}
		return nil, false, err
	}
	return parent, true, nil
}

// RefreshDetails rebuilds the subject breakdown of every stored bulletin and
// hands each result to visit. A failing bulletin does not stop the run.
func (s *MaintenanceService) RefreshDetails(ctx context.Context, visit func(DetailReport)) (int, error) {
	processed := 0
	for page := 1; ; page++ {
		rows, pagination, err := s.catalog.List(ctx, BulletinListRequest{Page: page, PageSize: 100, SortBy: "created_at", SortOrder: "asc"})
		if err != nil {
			return processed, err
		}
		for _, row := range rows {
			report := DetailReport{Bulletin: row}
			view, err := s.catalog.Get(ctx, row.ID)
			if err != nil {
				report.Err = err
				s.logger.Warn("bulletin details unavailable", zap.String("bulletin_id", row.ID), zap.Error(err))
			} else {
				report.Subjects = view.Subjects
			}
			processed++
			if visit != nil {
				visit(report)
			}
		}
		if len(rows) == 0 || page*pagination.PageSize >= pagination.TotalCount {
			return processed, nil
		}
	}
}

// RecalculateRanks re-ranks every scope that owns bulletins.
func (s *MaintenanceService) RecalculateRanks(ctx context.Context) ([]RecalculateResult, error) {
	return s.catalog.RecalculateAll(ctx)
}
