// Package app assembles repositories and services for the API server and
// the maintenance CLI.
package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/bulletin-api/internal/repository"
	"github.com/noah-isme/bulletin-api/internal/service"
	"github.com/noah-isme/bulletin-api/pkg/cache"
	"github.com/noah-isme/bulletin-api/pkg/config"
	"github.com/noah-isme/bulletin-api/pkg/database"
	"github.com/noah-isme/bulletin-api/pkg/jobs"
	"github.com/noah-isme/bulletin-api/pkg/lock"
	"github.com/noah-isme/bulletin-api/pkg/mail"
	"github.com/noah-isme/bulletin-api/pkg/storage"
)

// App holds the wired services.
type App struct {
	Config *config.Config
	Logger *zap.Logger
	DB     *sqlx.DB
	Redis  *redis.Client

	Metrics       *service.MetricsService
	Auth          *service.AuthService
	Bulletins     *service.BulletinService
	Grades        *service.GradeService
	Notifications *service.NotificationService
	Exports       *service.BulletinExportService
	Maintenance   *service.MaintenanceService

	pdfQueue *jobs.Queue[string]
}

// New connects to Postgres (and Redis when the lock backend or the ranking
// cache needs it) and builds every service.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{Config: cfg, Logger: logger, DB: db}

	if err := a.connectRedis(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) connectRedis() error {
	bc := a.Config.Bulletins
	if bc.LockBackend != config.LockBackendRedis && !bc.RankingCacheEnabled {
		return nil
	}
	client, err := cache.NewRedis(a.Config.Redis)
	if err != nil {
		if bc.LockBackend == config.LockBackendRedis {
			return fmt.Errorf("connect redis: %w", err)
		}
		a.Logger.Warn("redis unavailable, ranking cache disabled", zap.Error(err))
		return nil
	}
	a.Redis = client
	return nil
}

func (a *App) wire() error {
	cfg := a.Config
	logger := a.Logger
	validate := validator.New()

	users := repository.NewUserRepository(a.DB)
	students := repository.NewStudentRepository(a.DB)
	classes := repository.NewClassRepository(a.DB)
	subjects := repository.NewSubjectRepository(a.DB)
	grades := repository.NewGradeRepository(a.DB)
	bulletins := repository.NewBulletinRepository(a.DB)
	notifications := repository.NewNotificationRepository(a.DB)

	a.Metrics = service.NewMetricsService()

	var cacheRepo service.CacheRepository
	if a.Redis != nil {
		cacheRepo = repository.NewCacheRepository(a.Redis, "bulletins")
	}
	rankingCache := service.NewCacheService(cacheRepo, a.Metrics, cfg.Bulletins.RankingCacheTTL, logger, cfg.Bulletins.RankingCacheEnabled && cacheRepo != nil)

	var locker lock.Locker = lock.NewLocal()
	if cfg.Bulletins.LockBackend == config.LockBackendRedis {
		locker = lock.NewRedis(a.Redis, cfg.Bulletins.LockTTL, logger)
	}

	mailer, err := mail.New(cfg.Mail, logger)
	if err != nil {
		return err
	}

	a.Auth = service.NewAuthService(users, validate, logger, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})
	a.Notifications = service.NewNotificationService(notifications, logger)
	notifier := service.NewPublicationNotifier(mailer, a.Notifications, a.Metrics, logger, cfg.Mail.FrontendURL)

	a.Bulletins = service.NewBulletinService(
		bulletins, students, classes, grades,
		locker, notifier, rankingCache, a.Metrics, validate, logger,
		service.BulletinServiceConfig{
			LockWait:        cfg.Bulletins.LockWait,
			RankingCacheTTL: cfg.Bulletins.RankingCacheTTL,
			Coefficients: service.CoefficientTable{
				Defaults: cfg.Bulletins.DefaultCoefficients,
				Fallback: cfg.Bulletins.FallbackCoefficient,
			},
		},
	)
	a.Grades = service.NewGradeService(grades, students, subjects, a.Notifications, validate, logger)
	a.Maintenance = service.NewMaintenanceService(users, students, a.Bulletins, logger)

	files, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
	if err != nil {
		return err
	}
	signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
	a.Exports = service.NewBulletinExportService(bulletins, a.Bulletins, files, signer, a.Metrics, logger, service.ExportConfig{
		APIPrefix:       cfg.APIPrefix,
		SchoolName:      cfg.Exports.SchoolName,
		ResultTTL:       cfg.Exports.SignedURLTTL,
		CleanupInterval: cfg.Exports.CleanupInterval,
	})
	a.pdfQueue = jobs.NewQueue[string]("bulletin-pdf", a.Exports.Render, jobs.QueueConfig{
		Workers:    cfg.Exports.WorkerConcurrency,
		MaxRetries: cfg.Exports.WorkerRetries,
		Logger:     logger,
	})
	a.Exports.AttachQueue(a.pdfQueue)
	return nil
}

// StartWorkers launches the PDF queue and the export cleanup loop. Only the
// API server calls it.
func (a *App) StartWorkers(ctx context.Context) {
	a.pdfQueue.Start(ctx)
	a.Exports.StartCleanup(ctx)
}

// Close stops workers and releases connections.
func (a *App) Close() {
	if a.pdfQueue != nil {
		a.pdfQueue.Stop()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
