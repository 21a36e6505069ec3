package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/coursehub/course-hub-api/internal/handler"
	"github.com/coursehub/course-hub-api/internal/middleware"
	"github.com/coursehub/course-hub-api/internal/models"
	"github.com/coursehub/course-hub-api/internal/service"
	"github.com/coursehub/course-hub-api/pkg/config"
	"github.com/coursehub/course-hub-api/pkg/logger"
	corsmiddleware "github.com/coursehub/course-hub-api/pkg/middleware/cors"
	reqidmiddleware "github.com/coursehub/course-hub-api/pkg/middleware/requestid"
)

// Dependencies collects everything the router mounts.
type Dependencies struct {
	Config      *config.Config
	Logger      *zap.Logger
	Auth        *service.AuthService
	Metrics     *service.MetricsService
	Users       *handler.UserHandler
	Students    *handler.StudentHandler
	Instructors *handler.InstructorHandler
	Courses     *handler.CourseHandler
	Enrollments *handler.EnrollmentHandler
	AuthHandler *handler.AuthHandler
}

// New builds the gin engine with all routes and middleware attached.
//
// Coarse role gates live here; ownership checks that need a database load
// stay in the services, so a route listed with a broad guard may still
// return 403 from deeper in.
func New(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.Logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/signup", deps.AuthHandler.Signup)
	auth.POST("/login", deps.AuthHandler.Login)
	auth.POST("/logout", deps.AuthHandler.Logout)

	// Catalog reads are public; everything below requires a token.
	api.GET("/courses", deps.Courses.List)
	api.GET("/courses/:id", deps.Courses.Get)

	authed := api.Group("")
	authed.Use(middleware.JWT(deps.Auth))

	admin := string(models.RoleAdmin)
	instructor := string(models.RoleInstructor)
	student := string(models.RoleStudent)

	users := authed.Group("/users")
	users.GET("", middleware.RBAC(admin), deps.Users.List)
	users.POST("", middleware.RBAC(admin), deps.Users.Create)
	users.GET("/:id", middleware.RBAC(admin, "SELF"), deps.Users.Get)
	users.PATCH("/:id", middleware.RBAC(admin, "SELF"), deps.Users.Update)
	users.PUT("/:id/role", middleware.RBAC(admin), deps.Users.UpdateRole)
	users.DELETE("/:id", middleware.RBAC(admin), deps.Users.Delete)

	students := authed.Group("/students")
	students.GET("", middleware.RBAC(admin), deps.Students.List)
	students.POST("", middleware.RBAC(admin), deps.Students.Create)
	students.GET("/:id", deps.Students.Get)
	students.PATCH("/:id", deps.Students.Update)
	students.DELETE("/:id", middleware.RBAC(admin), deps.Students.Delete)
	students.GET("/:id/enrollments", deps.Students.ListEnrollments)

	instructors := authed.Group("/instructors")
	instructors.GET("", middleware.RBAC(admin), deps.Instructors.List)
	instructors.POST("", middleware.RBAC(admin), deps.Instructors.Create)
	instructors.GET("/:id", deps.Instructors.Get)
	instructors.PATCH("/:id", deps.Instructors.Update)
	instructors.DELETE("/:id", middleware.RBAC(admin), deps.Instructors.Delete)
	instructors.GET("/:id/courses", deps.Instructors.ListCourses)

	courses := authed.Group("/courses")
	courses.POST("", middleware.RBAC(admin, instructor), deps.Courses.Create)
	courses.PATCH("/:id", middleware.RBAC(admin, instructor), deps.Courses.Update)
	courses.DELETE("/:id", middleware.RBAC(admin, instructor), deps.Courses.Delete)
	courses.GET("/:id/enrollments", middleware.RBAC(admin, instructor), deps.Courses.ListEnrollments)
	courses.GET("/:id/enrollments/export", middleware.RBAC(admin, instructor), deps.Courses.ExportRoster)

	enrollments := authed.Group("/enrollments")
	enrollments.GET("", deps.Enrollments.List)
	enrollments.POST("", middleware.RBAC(admin, student), deps.Enrollments.Create)
	enrollments.GET("/:id", deps.Enrollments.Get)
	enrollments.PATCH("/:id", deps.Enrollments.UpdateStatus)
	enrollments.DELETE("/:id", middleware.RBAC(admin), deps.Enrollments.Delete)

	return r
}
