package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"taskbot/internal/authz"
	"taskbot/internal/handlers"
	"taskbot/internal/middleware"
)

type Handlers struct {
	Tasks        *handlers.TaskHandler
	Companies    *handlers.CompanyHandler
	Users        *handlers.UserHandler
	Reports      *handlers.ReportHandler
	Integrations *handlers.IntegrationsHandler // nil без Telegram
	Metrics      http.Handler                  // nil отключает /metrics
}

func SetupRoutes(r *gin.Engine, h Handlers, auth gin.HandlerFunc) *gin.Engine {
	// ---- public
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics))
	}
	// Telegram webhook публикуем только если есть интеграция
	if h.Integrations != nil {
		r.POST("/integrations/telegram/webhook/:secret", h.Integrations.Webhook)
	}

	// ---- protected
	r.Use(auth)

	users := r.Group("/users")
	{
		users.GET("/me", h.Users.Me)
		users.GET("", middleware.RequireRoles(authz.RoleDirector, authz.RoleManager), h.Users.List)
		users.PATCH("/:id/role", middleware.RequireRoles(authz.RoleDirector), h.Users.ChangeRole)
	}

	companies := r.Group("/companies")
	{
		companies.GET("", h.Companies.List)
		companies.POST("", middleware.RequireRoles(authz.RoleDirector, authz.RoleManager), h.Companies.Create)
		companies.GET("/rollup", h.Companies.Rollup)
	}

	tasks := r.Group("/tasks")
	{
		tasks.POST("", middleware.RequireRoles(authz.RoleDirector, authz.RoleManager), h.Tasks.Create)
		tasks.GET("", h.Tasks.List)
		tasks.GET("/:id", h.Tasks.GetByID)
		tasks.PATCH("/:id/status", h.Tasks.ChangeStatus)
		tasks.GET("/:id/transitions", h.Tasks.Transitions)
		tasks.GET("/:id/comments", h.Tasks.ListComments)
		tasks.POST("/:id/comments", h.Tasks.AddComment)
		tasks.GET("/:id/files", h.Tasks.ListFiles)
		tasks.POST("/:id/files", h.Tasks.Upload)
		tasks.GET("/:id/files/:file_id", h.Tasks.Download)
	}

	r.GET("/reports/tasks.pdf", h.Reports.TasksPDF)
	return r
}
