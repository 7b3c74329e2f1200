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
	"github.com/noah-isme/bulletin-api/internal/repository"
	appErrors "github.com/noah-isme/bulletin-api/pkg/errors"
	"github.com/noah-isme/bulletin-api/pkg/lock"
)

type bulletinStore interface {
	FindByID(ctx context.Context, id string) (*models.BulletinDetail, error)
	FindByStudentPeriod(ctx context.Context, studentID string, period models.Period, schoolYear string) (*models.Bulletin, error)
	List(ctx context.Context, filter models.BulletinFilter) ([]models.BulletinDetail, int, error)
	ListScope(ctx context.Context, scope models.RankScope) ([]models.Bulletin, error)
	Ranking(ctx context.Context, scope models.RankScope) ([]models.RankingEntry, error)
	ListScopes(ctx context.Context) ([]models.RankScope, error)
	Create(ctx context.Context, bulletin *models.Bulletin) error
	Update(ctx context.Context, bulletin *models.Bulletin) error
	MarkPublished(ctx context.Context, id, actorID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	Rerank(ctx context.Context, scope models.RankScope, total int, rank repository.RankFunc) ([]models.RankAssignment, error)
	InsertAndRerank(ctx context.Context, scope models.RankScope, staged []models.Bulletin, total int, rank repository.RankFunc) ([]models.Bulletin, []models.Bulletin, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	FindByUserID(ctx context.Context, userID string) (*models.StudentDetail, error)
	ListByClass(ctx context.Context, classID string) ([]models.StudentDetail, error)
	CountByClass(ctx context.Context, classID string) (int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

type periodGradeReader interface {
	ListByStudentPeriod(ctx context.Context, studentID string, period models.Period) ([]models.GradeWithSubject, error)
	ListByClassPeriod(ctx context.Context, classID string, period models.Period) (map[string][]models.GradeWithSubject, error)
}

type publicationNotifier interface {
	NotifyPublished(ctx context.Context, bulletin models.Bulletin, student models.StudentDetail, actorID string) []Delivery
}

// BulletinServiceConfig tunes locking, caching and the breakdown view.
type BulletinServiceConfig struct {
	LockWait        time.Duration
	RankingCacheTTL time.Duration
	Coefficients    CoefficientTable
}

// Re-rank triggers recorded in metrics.
const (
	triggerManual      = "manual"
	triggerBulk        = "bulk"
	triggerMaintenance = "maintenance"
)

// CreateBulletinRequest is the payload for a single bulletin.
type CreateBulletinRequest struct {
	StudentID  string        `json:"student_id" validate:"required"`
	Period     models.Period `json:"period" validate:"required"`
	SchoolYear string        `json:"school_year" validate:"required,max=20"`
	Remark     *string       `json:"remark" validate:"omitempty,max=2000"`
}

// UpdateBulletinRequest applies only the supplied fields. Nothing is recomputed.
type UpdateBulletinRequest struct {
	Average       *float64        `json:"average"`
	Mention       *models.Mention `json:"mention"`
	Rank          *int            `json:"rank"`
	TotalStudents *int            `json:"total_students"`
	Remark        *string         `json:"remark" validate:"omitempty,max=2000"`
	Published     *bool           `json:"published"`
}

// GenerateBulkRequest creates the bulletins of a whole class.
type GenerateBulkRequest struct {
	ClassID            string        `json:"class_id" validate:"required"`
	Period             models.Period `json:"period" validate:"required"`
	SchoolYear         string        `json:"school_year" validate:"required,max=20"`
	PublishImmediately bool          `json:"publish_immediately"`
}

// BulkResult reports a class generation. Errors are per-student skips,
// warnings are delivery problems on cards that were created anyway.
type BulkResult struct {
	CreatedCount int               `json:"created_count"`
	Bulletins    []models.Bulletin `json:"bulletins"`
	Errors       []string          `json:"errors"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// PublishResult carries the published card and its notice outcomes.
type PublishResult struct {
	Bulletin   models.Bulletin `json:"bulletin"`
	Deliveries []Delivery      `json:"deliveries"`
}

// RecalculateResult is the outcome of one scope re-rank.
type RecalculateResult struct {
	Scope         models.RankScope        `json:"scope"`
	TotalStudents int                     `json:"total_students"`
	Assignments   []models.RankAssignment `json:"assignments"`
}

// RankingBoard lists a scope's bulletins in rank order.
type RankingBoard struct {
	Scope         models.RankScope      `json:"scope"`
	TotalStudents int                   `json:"total_students"`
	Entries       []models.RankingEntry `json:"entries"`
}

// BulletinListRequest captures list query parameters.
type BulletinListRequest struct {
	ClassID    string `form:"class_id"`
	StudentID  string `form:"student_id"`
	Period     string `form:"period"`
	SchoolYear string `form:"school_year"`
	Published  *bool  `form:"published"`
	Search     string `form:"search"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
	SortBy     string `form:"sort_by"`
	SortOrder  string `form:"sort_order"`
}

// BulletinService owns the bulletin lifecycle and class ranking.
type BulletinService struct {
	bulletins bulletinStore
	students  studentReader
	classes   classReader
	grades    periodGradeReader
	locker    lock.Locker
	notifier  publicationNotifier
	cache     *CacheService
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    BulletinServiceConfig
	now       func() time.Time
}

// NewBulletinService constructs the service.
func NewBulletinService(
	bulletins bulletinStore,
	students studentReader,
	classes classReader,
	grades periodGradeReader,
	locker lock.Locker,
	notifier publicationNotifier,
	cache *CacheService,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg BulletinServiceConfig,
) *BulletinService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 10 * time.Second
	}
	return &BulletinService{
		bulletins: bulletins,
		students:  students,
		classes:   classes,
		grades:    grades,
		locker:    locker,
		notifier:  notifier,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create computes and stores a Draft bulletin for one student. The rank is
// provisional: one plus the cards of the scope with a strictly better
// average. Classmates are not re-ranked.
func (s *BulletinService) Create(ctx context.Context, req CreateBulletinRequest) (*models.Bulletin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulletin payload")
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

	scope := models.RankScope{ClassID: student.ClassID, Period: req.Period, SchoolYear: req.SchoolYear}
	var card *models.Bulletin
	err = s.withScope(ctx, scope, func() error {
		existing, err := s.bulletins.FindByStudentPeriod(ctx, student.ID, req.Period, req.SchoolYear)
		if err == nil && existing != nil {
			return appErrors.Clone(appErrors.ErrConflict, "a bulletin already exists for this period")
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing bulletin")
		}

		grades, err := s.grades.ListByStudentPeriod(ctx, student.ID, req.Period)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
		}
		average, ok := ComputeAverage(gradeValues(grades))
		if !ok {
			return appErrors.Clone(appErrors.ErrNoGrades, "no grades found for this period")
		}

		scopeCards, err := s.bulletins.ListScope(ctx, scope)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class bulletins")
		}
		others := make([]float64, len(scopeCards))
		for i, c := range scopeCards {
			others[i] = c.Average
		}
		headcount, err := s.students.CountByClass(ctx, scope.ClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
		}

		card = &models.Bulletin{
			StudentID:     student.ID,
			Period:        req.Period,
			SchoolYear:    req.SchoolYear,
			Average:       average,
			Mention:       ClassifyMention(average),
			Rank:          ProvisionalRank(average, others),
			TotalStudents: headcount,
			Remark:        req.Remark,
		}
		if card.TotalStudents < card.Rank {
			card.TotalStudents = card.Rank
		}
		if err := s.bulletins.Create(ctx, card); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.Clone(appErrors.ErrConflict, "a bulletin already exists for this period")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create bulletin")
		}
		return nil
	})
	if err != nil {
		s.metrics.BulletinGenerated("single", outcomeOf(err))
		return nil, err
	}

	s.metrics.BulletinGenerated("single", OutcomeCreated)
	s.invalidateRanking(ctx, scope)
	s.logger.Info("bulletin created",
		zap.String("bulletin_id", card.ID),
		zap.String("student_id", card.StudentID),
		zap.String("scope", scope.Key()),
		zap.Float64("average", card.Average),
		zap.Int("rank", card.Rank))
	return card, nil
}

// Get returns a bulletin with its subject breakdown.
func (s *BulletinService) Get(ctx context.Context, id string) (*models.BulletinView, error) {
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, detail)
}

// List returns bulletins for staff screens.
func (s *BulletinService) List(ctx context.Context, req BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error) {
	filter := models.BulletinFilter{
		ClassID:    req.ClassID,
		Period:     models.Period(req.Period),
		SchoolYear: req.SchoolYear,
		Published:  req.Published,
		Search:     strings.TrimSpace(req.Search),
		Page:       req.Page,
		PageSize:   req.PageSize,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	}
	if req.StudentID != "" {
		filter.StudentIDs = []string{req.StudentID}
	}
	if filter.Period != "" && !filter.Period.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid period filter")
	}
	return s.list(ctx, filter)
}

// ListForStudent returns the published bulletins of the student account userID.
func (s *BulletinService) ListForStudent(ctx context.Context, userID string, req BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error) {
	student, err := s.studentByUser(ctx, userID)
	if err != nil {
		return nil, nil, err
	}
	return s.list(ctx, publishedFilter(student.ID, req))
}

// GetForStudent returns one of the student's own published bulletins.
func (s *BulletinService) GetForStudent(ctx context.Context, userID, id string) (*models.BulletinView, error) {
	student, err := s.studentByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.visibleView(ctx, student.ID, id)
}

// ListForParent returns the published bulletins of a child linked to parentID.
func (s *BulletinService) ListForParent(ctx context.Context, parentID, studentID string, req BulletinListRequest) ([]models.BulletinDetail, *models.Pagination, error) {
	if err := s.ensureChild(ctx, parentID, studentID); err != nil {
		return nil, nil, err
	}
	return s.list(ctx, publishedFilter(studentID, req))
}

// GetForParent returns one published bulletin of a child linked to parentID.
func (s *BulletinService) GetForParent(ctx context.Context, parentID, studentID, id string) (*models.BulletinView, error) {
	if err := s.ensureChild(ctx, parentID, studentID); err != nil {
		return nil, err
	}
	return s.visibleView(ctx, studentID, id)
}

// Update applies a partial update. Ranks of classmates are left untouched.
func (s *BulletinService) Update(ctx context.Context, id string, req UpdateBulletinRequest) (*models.Bulletin, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulletin payload")
	}
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	scope := scopeOf(detail)
	var card models.Bulletin
	err = s.withScope(ctx, scope, func() error {
		current, err := s.find(ctx, id)
		if err != nil {
			return err
		}
		card = current.Bulletin
		if err := applyUpdate(&card, req, s.now()); err != nil {
			return err
		}
		if err := s.bulletins.Update(ctx, &card); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
			}
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update bulletin")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.invalidateRanking(ctx, scope)
	return &card, nil
}

func applyUpdate(card *models.Bulletin, req UpdateBulletinRequest, now time.Time) error {
	if req.Average != nil {
		if *req.Average < 0 || *req.Average > 20 {
			return appErrors.Clone(appErrors.ErrValidation, "average must be between 0 and 20")
		}
		card.Average = round2(*req.Average).InexactFloat64()
	}
	if req.Mention != nil {
		if !req.Mention.Valid() {
			return appErrors.Clone(appErrors.ErrValidation, "unknown mention")
		}
		card.Mention = *req.Mention
	}
	if req.Rank != nil {
		if *req.Rank < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "rank must be at least 1")
		}
		card.Rank = *req.Rank
	}
	if req.TotalStudents != nil {
		if *req.TotalStudents < 1 {
			return appErrors.Clone(appErrors.ErrValidation, "total_students must be at least 1")
		}
		card.TotalStudents = *req.TotalStudents
	}
	if card.Rank > card.TotalStudents {
		return appErrors.Clone(appErrors.ErrValidation, "rank cannot exceed total_students")
	}
	if req.Remark != nil {
		card.Remark = req.Remark
	}
	if req.Published != nil {
		if card.Published && !*req.Published {
			return appErrors.Clone(appErrors.ErrValidation, "a published bulletin cannot be unpublished")
		}
		if *req.Published && !card.Published {
			card.Published = true
			card.PublishedAt = &now
		}
	}
	return nil
}

// Delete removes a bulletin. Remaining cards keep their ranks until the
// scope is recalculated.
func (s *BulletinService) Delete(ctx context.Context, id string) error {
	detail, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bulletins.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete bulletin")
	}
	s.invalidateRanking(ctx, scopeOf(detail))
	return nil
}

// Publish marks a bulletin published and notifies the student and linked
// parent. Republishing is allowed and sends the notices again. Delivery
// failures are reported in the result, never as an error.
func (s *BulletinService) Publish(ctx context.Context, id, actorID string) (*PublishResult, error) {
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	student, err := s.students.FindByID(ctx, detail.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	card := detail.Bulletin
	deliveries, err := s.publish(ctx, &card, *student, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish bulletin")
	}
	s.invalidateRanking(ctx, scopeOf(detail))
	return &PublishResult{Bulletin: card, Deliveries: deliveries}, nil
}

func (s *BulletinService) publish(ctx context.Context, card *models.Bulletin, student models.StudentDetail, actorID string) ([]Delivery, error) {
	now := s.now()
	if err := s.bulletins.MarkPublished(ctx, card.ID, actorID, now); err != nil {
		return nil, err
	}
	card.Published = true
	card.PublishedAt = &now
	if actorID != "" {
		card.PublishedBy = &actorID
	}
	s.metrics.BulletinPublished()
	if s.notifier == nil {
		return nil, nil
	}
	return s.notifier.NotifyPublished(ctx, *card, student, actorID), nil
}

// GenerateBulk creates the missing bulletins of a class in two phases. Cards
// are staged in memory, then inserted and ranked in one transaction so no
// provisional rank is ever visible. Publication, when requested, happens
// after the ranks are committed.
func (s *BulletinService) GenerateBulk(ctx context.Context, req GenerateBulkRequest, actorID string) (*BulkResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk generation payload")
	}
	if !req.Period.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "period must be one of trimestre_1, trimestre_2, trimestre_3")
	}
	if err := s.ensureClass(ctx, req.ClassID); err != nil {
		return nil, err
	}

	scope := models.RankScope{ClassID: req.ClassID, Period: req.Period, SchoolYear: req.SchoolYear}
	result := &BulkResult{Bulletins: []models.Bulletin{}, Errors: []string{}}
	roster := make(map[string]models.StudentDetail)

	start := s.now()
	err := s.withScope(ctx, scope, func() error {
		students, err := s.students.ListByClass(ctx, req.ClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class students")
		}
		for _, st := range students {
			roster[st.ID] = st
		}

		staged, skipped, err := s.stageCards(ctx, scope, students)
		if err != nil {
			return err
		}
		result.Errors = append(result.Errors, skipped...)

		inserted, conflicts, err := s.commitRanks(ctx, scope, staged, len(students))
		if err != nil {
			return err
		}
		for _, c := range conflicts {
			s.metrics.BulletinGenerated("bulk", OutcomeConflict)
			result.Errors = append(result.Errors, "bulletin already exists for "+roster[c.StudentID].FullName)
		}
		for range inserted {
			s.metrics.BulletinGenerated("bulk", OutcomeCreated)
		}
		result.Bulletins = append(result.Bulletins, inserted...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(result.Bulletins) > 0 {
		s.metrics.RankRecalculated(triggerBulk, s.now().Sub(start))
	}
	result.CreatedCount = len(result.Bulletins)

	if req.PublishImmediately {
		for i := range result.Bulletins {
			card := &result.Bulletins[i]
			student := roster[card.StudentID]
			deliveries, err := s.publish(ctx, card, student, actorID)
			if err != nil {
				s.logger.Error("bulk publish failed", zap.String("bulletin_id", card.ID), zap.Error(err))
				result.Errors = append(result.Errors, fmt.Sprintf("publication failed for %s: %v", student.FullName, err))
				continue
			}
			for _, d := range deliveries {
				if !d.Delivered {
					result.Warnings = append(result.Warnings, fmt.Sprintf("email to %s of %s failed: %s", d.Recipient, student.FullName, d.Error))
				}
			}
		}
	}

	s.invalidateRanking(ctx, scope)
	s.logger.Info("bulk bulletin generation finished",
		zap.String("scope", scope.Key()),
		zap.Int("created", result.CreatedCount),
		zap.Int("errors", len(result.Errors)),
		zap.Bool("published", req.PublishImmediately))
	return result, nil
}

// stageCards builds Draft cards for every student who has grades and no
// bulletin yet. Students who cannot get one are reported, not fatal.
func (s *BulletinService) stageCards(ctx context.Context, scope models.RankScope, students []models.StudentDetail) ([]models.Bulletin, []string, error) {
	existing, err := s.bulletins.ListScope(ctx, scope)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class bulletins")
	}
	hasCard := make(map[string]bool, len(existing))
	for _, c := range existing {
		hasCard[c.StudentID] = true
	}
	grades, err := s.grades.ListByClassPeriod(ctx, scope.ClassID, scope.Period)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class grades")
	}

	var staged []models.Bulletin
	var skipped []string
	for _, st := range students {
		if hasCard[st.ID] {
			s.metrics.BulletinGenerated("bulk", OutcomeConflict)
			skipped = append(skipped, "bulletin already exists for "+st.FullName)
			continue
		}
		average, ok := ComputeAverage(gradeValues(grades[st.ID]))
		if !ok {
			s.metrics.BulletinGenerated("bulk", OutcomeNoGrades)
			skipped = append(skipped, "no grades found for "+st.FullName)
			continue
		}
		staged = append(staged, models.Bulletin{
			StudentID:     st.ID,
			Period:        scope.Period,
			SchoolYear:    scope.SchoolYear,
			Average:       average,
			Mention:       ClassifyMention(average),
			Rank:          1,
			TotalStudents: len(students),
		})
	}
	return staged, skipped, nil
}

// commitRanks inserts the staged cards and re-ranks the whole scope in a
// single transaction.
func (s *BulletinService) commitRanks(ctx context.Context, scope models.RankScope, staged []models.Bulletin, headcount int) ([]models.Bulletin, []models.Bulletin, error) {
	if len(staged) == 0 {
		return nil, nil, nil
	}
	inserted, conflicts, err := s.bulletins.InsertAndRerank(ctx, scope, staged, headcount, AssignRanks)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store class bulletins")
	}
	return inserted, conflicts, nil
}

// RecalculateRanks re-ranks every bulletin of the scope and rewrites the
// class headcount on each. Running it twice yields the same result.
func (s *BulletinService) RecalculateRanks(ctx context.Context, scope models.RankScope) (*RecalculateResult, error) {
	return s.recalculate(ctx, scope, triggerManual)
}

func (s *BulletinService) recalculate(ctx context.Context, scope models.RankScope, trigger string) (*RecalculateResult, error) {
	if !scope.Period.Valid() || scope.SchoolYear == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id, period and school_year are required")
	}
	if err := s.ensureClass(ctx, scope.ClassID); err != nil {
		return nil, err
	}

	start := s.now()
	result := &RecalculateResult{Scope: scope, Assignments: []models.RankAssignment{}}
	err := s.withScope(ctx, scope, func() error {
		headcount, err := s.students.CountByClass(ctx, scope.ClassID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
		}
		assignments, err := s.bulletins.Rerank(ctx, scope, headcount, AssignRanks)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recalculate ranks")
		}
		result.TotalStudents = headcount
		if assignments != nil {
			result.Assignments = assignments
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RankRecalculated(trigger, s.now().Sub(start))
	s.invalidateRanking(ctx, scope)
	s.logger.Info("ranks recalculated",
		zap.String("scope", scope.Key()),
		zap.Int("bulletins", len(result.Assignments)),
		zap.Int("total_students", result.TotalStudents))
	return result, nil
}

// RecalculateAll re-ranks every scope that owns bulletins. A failing scope is
// logged and reported; the others still run.
func (s *BulletinService) RecalculateAll(ctx context.Context) ([]RecalculateResult, error) {
	scopes, err := s.bulletins.ListScopes(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list ranking scopes")
	}
	results := make([]RecalculateResult, 0, len(scopes))
	var failed []string
	for _, scope := range scopes {
		res, err := s.recalculate(ctx, scope, triggerMaintenance)
		if err != nil {
			s.logger.Error("scope recalculation failed", zap.String("scope", scope.Key()), zap.Error(err))
			failed = append(failed, scope.Key())
			continue
		}
		results = append(results, *res)
	}
	if len(failed) > 0 {
		return results, fmt.Errorf("recalculation failed for %d scope(s): %s", len(failed), strings.Join(failed, ", "))
	}
	return results, nil
}

// Ranking returns the rank board of a scope, served from cache when possible.
func (s *BulletinService) Ranking(ctx context.Context, scope models.RankScope) (*RankingBoard, error) {
	if !scope.Period.Valid() || scope.SchoolYear == "" || scope.ClassID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class_id, period and school_year are required")
	}
	var board RankingBoard
	if s.cache.Get(ctx, rankingCacheKey(scope), &board) {
		return &board, nil
	}
	if err := s.ensureClass(ctx, scope.ClassID); err != nil {
		return nil, err
	}

	entries, err := s.bulletins.Ranking(ctx, scope)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ranking")
	}
	headcount, err := s.students.CountByClass(ctx, scope.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count class students")
	}
	if entries == nil {
		entries = []models.RankingEntry{}
	}
	board = RankingBoard{Scope: scope, TotalStudents: headcount, Entries: entries}
	s.cache.Set(ctx, rankingCacheKey(scope), board, s.config.RankingCacheTTL)
	return &board, nil
}

func rankingCacheKey(scope models.RankScope) string {
	return "ranking:" + scope.Key()
}

func (s *BulletinService) invalidateRanking(ctx context.Context, scope models.RankScope) {
	s.cache.Invalidate(ctx, rankingCacheKey(scope))
}

// withScope runs fn while holding the scope lock.
func (s *BulletinService) withScope(ctx context.Context, scope models.RankScope, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.config.LockWait)
	defer cancel()
	unlock, err := s.locker.Acquire(lockCtx, scope.Key())
	if err != nil {
		if errors.Is(err, lock.ErrTimeout) {
			return appErrors.Wrap(err, appErrors.ErrScopeBusy.Code, appErrors.ErrScopeBusy.Status, appErrors.ErrScopeBusy.Message)
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock ranking scope")
	}
	defer unlock()
	return fn()
}

func (s *BulletinService) find(ctx context.Context, id string) (*models.BulletinDetail, error) {
	detail, err := s.bulletins.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load bulletin")
	}
	return detail, nil
}

func (s *BulletinService) view(ctx context.Context, detail *models.BulletinDetail) (*models.BulletinView, error) {
	grades, err := s.grades.ListByStudentPeriod(ctx, detail.StudentID, detail.Period)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load grades")
	}
	subjects := SubjectBreakdown(grades, s.config.Coefficients)
	if subjects == nil {
		subjects = []models.SubjectSummary{}
	}
	return &models.BulletinView{BulletinDetail: *detail, Subjects: subjects}, nil
}

func (s *BulletinService) visibleView(ctx context.Context, studentID, id string) (*models.BulletinView, error) {
	detail, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if detail.StudentID != studentID || !detail.Published {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "bulletin not found")
	}
	return s.view(ctx, detail)
}

func (s *BulletinService) list(ctx context.Context, filter models.BulletinFilter) ([]models.BulletinDetail, *models.Pagination, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize <= 0 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	rows, total, err := s.bulletins.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list bulletins")
	}
	return rows, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}, nil
}

func (s *BulletinService) studentByUser(ctx context.Context, userID string) (*models.StudentDetail, error) {
	student, err := s.students.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *BulletinService) ensureChild(ctx context.Context, parentID, studentID string) error {
	student, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.ParentID == nil || *student.ParentID != parentID {
		return appErrors.Clone(appErrors.ErrForbidden, "student is not linked to this parent")
	}
	return nil
}

func (s *BulletinService) ensureClass(ctx context.Context, classID string) error {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return nil
}

func publishedFilter(studentID string, req BulletinListRequest) models.BulletinFilter {
	published := true
	return models.BulletinFilter{
		StudentIDs: []string{studentID},
		Period:     models.Period(req.Period),
		SchoolYear: req.SchoolYear,
		Published:  &published,
		Page:       req.Page,
		PageSize:   req.PageSize,
		SortBy:     req.SortBy,
		SortOrder:  req.SortOrder,
	}
}

func scopeOf(detail *models.BulletinDetail) models.RankScope {
	return models.RankScope{ClassID: detail.ClassID, Period: detail.Period, SchoolYear: detail.SchoolYear}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrConflict):
		return OutcomeConflict
	case errors.Is(err, appErrors.ErrNoGrades):
		return OutcomeNoGrades
	}
	return "error"
}
