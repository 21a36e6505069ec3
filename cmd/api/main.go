package main

import (
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"

	_ "github.com/coursehub/course-hub-api/api/swagger"
	"github.com/coursehub/course-hub-api/internal/handler"
	"github.com/coursehub/course-hub-api/internal/repository"
	"github.com/coursehub/course-hub-api/internal/router"
	"github.com/coursehub/course-hub-api/internal/service"
	"github.com/coursehub/course-hub-api/pkg/cache"
	"github.com/coursehub/course-hub-api/pkg/config"
	"github.com/coursehub/course-hub-api/pkg/database"
	"github.com/coursehub/course-hub-api/pkg/logger"
)

// @title Course Hub API
// @version 1.0.0
// @description Course enrollment management backend
// @BasePath /api
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
	defer db.Close() //nolint:errcheck

	// The catalog works without Redis; a missing cache only costs reads.
	var cacheRepo *repository.CacheRepository
	if cfg.Catalog.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, catalog cache disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	validate := validator.New()
	metrics := service.NewMetricsService()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	instructorRepo := repository.NewInstructorRepository(db)
	courseRepo := repository.NewCourseRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		Secret:     cfg.JWT.Secret,
		Expiration: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	userService := service.NewUserService(userRepo, validate, logr)
	studentService := service.NewStudentService(studentRepo, userRepo, enrollmentRepo, validate, logr)
	instructorService := service.NewInstructorService(instructorRepo, userRepo, courseRepo, validate, logr)

	var catalogCache service.CatalogCache
	if cacheRepo != nil {
		catalogCache = cacheRepo
	}
	courseService := service.NewCourseService(courseRepo, instructorRepo, enrollmentRepo, catalogCache, cfg.Catalog.CacheTTL, metrics, validate, logr)
	enrollmentService := service.NewEnrollmentService(enrollmentRepo, studentRepo, instructorRepo, courseRepo, metrics, validate, logr)

	engine := router.New(router.Dependencies{
		Config:      cfg,
		Logger:      logr,
		Auth:        authService,
		Metrics:     metrics,
		Users:       handler.NewUserHandler(userService),
		Students:    handler.NewStudentHandler(studentService),
		Instructors: handler.NewInstructorHandler(instructorService),
		Courses:     handler.NewCourseHandler(courseService),
		Enrollments: handler.NewEnrollmentHandler(enrollmentService),
		AuthHandler: handler.NewAuthHandler(authService),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := engine.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
