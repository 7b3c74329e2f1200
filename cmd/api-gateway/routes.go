package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/bulletin-api/api/swagger"
	"github.com/noah-isme/bulletin-api/internal/app"
	"github.com/noah-isme/bulletin-api/internal/handler"
	"github.com/noah-isme/bulletin-api/internal/middleware"
	"github.com/noah-isme/bulletin-api/internal/models"
	"github.com/noah-isme/bulletin-api/pkg/config"
	"github.com/noah-isme/bulletin-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bulletin-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bulletin-api/pkg/middleware/requestid"
)

func newRouter(a *app.App) *gin.Engine {
	cfg := a.Config

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics))

	metrics := handler.NewMetricsHandler(a.Metrics, a.DB)
	r.GET("/health", metrics.Health)
	r.GET("/ready", metrics.Ready)
	r.GET("/metrics", metrics.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	auth := handler.NewAuthHandler(a.Auth)
	bulletins := handler.NewBulletinHandler(a.Bulletins, a.Exports)
	portal := handler.NewPortalHandler(a.Bulletins)
	grades := handler.NewGradeHandler(a.Grades)
	notifications := handler.NewNotificationHandler(a.Notifications)
	exports := handler.NewExportHandler(a.Exports)

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", auth.Login)
	api.GET("/exports/:token", exports.Download)

	secured := api.Group("")
	secured.Use(middleware.JWT(a.Auth))
	secured.GET("/auth/me", auth.Me)

	secured.GET("/notifications", notifications.List)
	secured.GET("/notifications/unread/count", notifications.UnreadCount)
	secured.PUT("/notifications/:id/read", notifications.MarkRead)
	secured.POST("/notifications/mark-all-read", notifications.MarkAllRead)

	staff := secured.Group("/bulletins")
	staff.Use(middleware.RequireStaff())
	staff.GET("", bulletins.List)
	staff.POST("", middleware.Audit(a.Logger, "bulletin.create", ""), bulletins.Create)
	staff.GET("/ranking", bulletins.Ranking)
	staff.POST("/generate-bulk", middleware.Audit(a.Logger, "bulletin.generate_bulk", ""), bulletins.GenerateBulk)
	staff.POST("/recalculate-ranks", middleware.Audit(a.Logger, "bulletin.recalculate_ranks", ""), bulletins.RecalculateRanks)
	staff.GET("/:id", bulletins.Get)
	staff.PUT("/:id", middleware.Audit(a.Logger, "bulletin.update", "id"), bulletins.Update)
	staff.DELETE("/:id", middleware.Audit(a.Logger, "bulletin.delete", "id"), bulletins.Delete)
	staff.POST("/:id/publish", middleware.Audit(a.Logger, "bulletin.publish", "id"), bulletins.Publish)
	staff.POST("/:id/pdf", bulletins.RequestPDF)
	staff.GET("/:id/pdf", bulletins.PDFLink)

	gradeRoutes := secured.Group("/grades")
	gradeRoutes.Use(middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin, models.RoleTeacher))
	gradeRoutes.GET("", grades.List)
	gradeRoutes.POST("", middleware.Audit(a.Logger, "grade.create", ""), grades.Create)
	gradeRoutes.PUT("/:id", middleware.Audit(a.Logger, "grade.update", "id"), grades.Update)
	gradeRoutes.DELETE("/:id", middleware.Audit(a.Logger, "grade.delete", "id"), grades.Delete)

	student := secured.Group("/student")
	student.Use(middleware.RequireRoles(models.RoleStudent))
	student.GET("/bulletins", portal.StudentBulletins)
	student.GET("/bulletins/:id", portal.StudentBulletin)

	parent := secured.Group("/parent")
	parent.Use(middleware.RequireRoles(models.RoleParent))
	parent.GET("/children/:studentId/bulletins", portal.ChildBulletins)
	parent.GET("/children/:studentId/bulletins/:id", portal.ChildBulletin)

	return r
}
