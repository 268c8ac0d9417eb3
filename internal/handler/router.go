package handler

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/middleware"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-timetable-api/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler for route registration.
type Handlers struct {
	Auth           *AuthHandler
	TimeSlots      *TimeSlotHandler
	TeacherSubject *TeacherSubjectHandler
	Availability   *AvailabilityHandler
	Schedules      *ScheduleHandler
	Templates      *TemplateHandler
	Metrics        *MetricsHandler
}

// NewRouter assembles the gin engine: global middleware, observability
// endpoints and the versioned API surface.
func NewRouter(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, metricsSvc *service.MetricsService, h Handlers) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Health)
	r.GET("/metrics", h.Metrics.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	api.POST("/auth/login", h.Auth.Login)

	authed := api.Group("")
	authed.Use(middleware.JWT(authSvc))

	authed.GET("/auth/me", h.Auth.Me)

	admin := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin)
	scheduling := middleware.RequireRoles(models.RoleSuperAdmin, models.RoleAdmin, models.RoleScheduler)

	slots := authed.Group("/time-slots")
	{
		slots.GET("", h.TimeSlots.List)
		slots.GET("/:id", h.TimeSlots.Get)
		slots.POST("", admin, h.TimeSlots.Create)
		slots.POST("/standard", admin, h.TimeSlots.CreateStandard)
		slots.DELETE("/:id", admin, h.TimeSlots.Deactivate)
	}

	subjects := authed.Group("/teacher-subjects")
	{
		subjects.PUT("", scheduling, h.TeacherSubject.Upsert)
		subjects.GET("/qualified", h.TeacherSubject.Qualified)
		subjects.POST("/evaluate", scheduling, h.TeacherSubject.Evaluate)
		subjects.GET("/:id", h.TeacherSubject.Get)
		subjects.GET("/:id/workload", h.TeacherSubject.WeeklyWorkload)
		subjects.GET("/:id/workload/daily", h.TeacherSubject.DailyWorkload)
	}

	teachers := authed.Group("/teachers")
	{
		teachers.GET("/:id/subjects", h.TeacherSubject.ListByTeacher)
		teachers.GET("/:id/availability", middleware.RBAC("SUPERADMIN", "ADMIN", "SCHEDULER", "SELF"), h.Availability.WeeklySummary)
	}

	availability := authed.Group("/availability")
	{
		availability.POST("", h.Availability.Create)
		availability.GET("/check", h.Availability.Check)
		availability.POST("/:id/approve", scheduling, h.Availability.Approve)
		availability.POST("/:id/reject", scheduling, h.Availability.Reject)
	}

	schedules := authed.Group("/schedules")
	{
		schedules.GET("", h.Schedules.List)
		schedules.GET("/:id", h.Schedules.Get)
		schedules.GET("/:id/sessions", h.Schedules.Sessions)
		schedules.GET("/:id/conflicts", h.Schedules.DetectConflicts)
		schedules.GET("/:id/validate", h.Schedules.Validate)
		schedules.GET("/:id/statistics", h.Schedules.Statistics)
		schedules.GET("/:id/history", h.Schedules.History)

		schedules.POST("", scheduling, h.Schedules.Create)
		schedules.POST("/:id/sessions", scheduling, h.Schedules.AddSession)
		schedules.DELETE("/:id/sessions/:sessionId", scheduling, h.Schedules.CancelSession)
		schedules.POST("/:id/copy", scheduling, h.Schedules.Copy)

		schedules.POST("/:id/submit", scheduling, h.Schedules.SubmitForReview)
		schedules.POST("/:id/review", admin, h.Schedules.StartReview)
		schedules.POST("/:id/approve", admin, h.Schedules.Approve)
		schedules.POST("/:id/reject", admin, h.Schedules.Reject)
		schedules.POST("/:id/activate", admin, h.Schedules.Activate)
		schedules.POST("/:id/suspend", admin, h.Schedules.Suspend)
		schedules.POST("/:id/archive", admin, h.Schedules.Archive)

		if cfg.Exports.Enabled {
			schedules.GET("/:id/export/:format", h.Schedules.Export)
			schedules.POST("/:id/export/:format/archive", scheduling, h.Schedules.ArchiveExport)
		}
	}

	if cfg.Exports.Enabled {
		// Token-authorized: the signed token is the credential.
		api.GET("/exports/download", h.Schedules.DownloadExport)
	}

	templates := authed.Group("/templates")
	{
		templates.GET("", h.Templates.List)
		templates.GET("/:id", h.Templates.Get)
		templates.POST("", scheduling, h.Templates.Create)
		templates.PATCH("/:id/status", scheduling, h.Templates.UpdateStatus)
		templates.POST("/:id/fork", scheduling, h.Templates.Fork)
		templates.POST("/generate", scheduling, h.Templates.Generate)
	}

	return r
}
