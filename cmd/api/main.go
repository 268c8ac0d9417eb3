package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-timetable-api/api/swagger"
	"github.com/noah-isme/sma-timetable-api/internal/handler"
	"github.com/noah-isme/sma-timetable-api/internal/repository"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	"github.com/noah-isme/sma-timetable-api/pkg/cache"
	"github.com/noah-isme/sma-timetable-api/pkg/config"
	"github.com/noah-isme/sma-timetable-api/pkg/database"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
	"github.com/noah-isme/sma-timetable-api/pkg/logger"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

// @title SMA Timetable API
// @version 1.0.0
// @description Scheduling core: time slots, qualifications, availability, schedules and templates
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	userRepo := repository.NewUserRepository(db)
	slotRepo := repository.NewTimeSlotRepository(db)
	subjectRepo := repository.NewTeacherSubjectRepository(db)
	availabilityRepo := repository.NewTeacherAvailabilityRepository(db)
	scheduleRepo := repository.NewScheduleRepository(db)
	sessionRepo := repository.NewScheduleSessionRepository(db)
	templateRepo := repository.NewScheduleTemplateRepository(db)
	changeLogRepo := repository.NewChangeLogRepository(db)
	directoryRepo := repository.NewDirectoryRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	metricsSvc := service.NewMetricsService()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            "sma-timetable-api",
	})

	changeLogSvc := service.NewChangeLogService(changeLogRepo, jobs.QueueConfig{
		Workers:    cfg.Audit.QueueWorkers,
		BufferSize: cfg.Audit.QueueBuffer,
		Logger:     logr,
	}, logr)

	slotSvc := service.NewTimeSlotService(slotRepo, db, validate, logr)
	subjectSvc := service.NewTeacherSubjectService(subjectRepo, sessionRepo, validate, logr)
	availabilitySvc := service.NewTeacherAvailabilityService(availabilityRepo, validate, logr)

	scheduleSvc := service.NewScheduleService(
		scheduleRepo,
		sessionRepo,
		slotRepo,
		subjectSvc,
		availabilitySvc,
		subjectRepo,
		changeLogSvc,
		cacheRepo,
		db,
		validate,
		logr,
		service.ScheduleServiceConfig{
			CrossScheduleConflicts: cfg.Scheduler.CrossScheduleConflicts,
			StatisticsCacheTTL:     cfg.Scheduler.StatisticsCacheTTL,
			MaxSessionsPerSchedule: cfg.Scheduler.MaxSessionsPerSchedule,
		},
	).WithMetrics(metricsSvc)

	templateSvc := service.NewScheduleTemplateService(templateRepo, slotRepo, subjectRepo, scheduleSvc, validate, logr).
		WithMetrics(metricsSvc)

	exportSvc := service.NewExportService(scheduleSvc, directoryRepo, logr)
	var exportStore *storage.LocalStorage
	if cfg.Exports.Enabled {
		exportStore, err = storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SigningSecret, cfg.Exports.DownloadTTL)
		exportSvc.WithArchive(exportStore, signer)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	changeLogSvc.Start(ctx)
	defer changeLogSvc.Stop()

	go availabilitySweeper(ctx, availabilitySvc, cfg.Availability.SweepInterval, logr)
	if exportStore != nil {
		go exportCleanup(ctx, exportStore, cfg.Exports.DownloadTTL, logr)
	}

	router := handler.NewRouter(cfg, logr, authSvc, metricsSvc, handler.Handlers{
		Auth:           handler.NewAuthHandler(authSvc),
		TimeSlots:      handler.NewTimeSlotHandler(slotSvc),
		TeacherSubject: handler.NewTeacherSubjectHandler(subjectSvc),
		Availability:   handler.NewAvailabilityHandler(availabilitySvc),
		Schedules:      handler.NewScheduleHandler(scheduleSvc, changeLogSvc, exportSvc),
		Templates:      handler.NewTemplateHandler(templateSvc),
		Metrics:        handler.NewMetricsHandler(metricsSvc),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
	logr.Info("server stopped")
}

// exportCleanup removes archived exports once their download tokens can no
// longer be valid.
func exportCleanup(ctx context.Context, store *storage.LocalStorage, ttl time.Duration, logr *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := store.CleanupOlderThan(ttl)
			if err != nil {
				logr.Sugar().Warnw("export cleanup failed", "error", err)
				continue
			}
			if len(deleted) > 0 {
				logr.Sugar().Infow("removed stale exports", "count", len(deleted))
			}
		}
	}
}

// availabilitySweeper periodically expires availability windows whose end
// date has passed.
func availabilitySweeper(ctx context.Context, svc *service.TeacherAvailabilityService, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ExpireOutdated(ctx)
			if err != nil {
				logr.Sugar().Warnw("availability sweep failed", "error", err)
				continue
			}
			if expired > 0 {
				logr.Sugar().Infow("expired availability windows", "count", expired)
			}
		}
	}
}
