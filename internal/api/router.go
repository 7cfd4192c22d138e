package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/dcrane/planwise/internal/handlers"
	"github.com/dcrane/planwise/internal/imagecache"
	"github.com/dcrane/planwise/internal/images"
	"github.com/dcrane/planwise/internal/middleware"
	"github.com/dcrane/planwise/internal/notifications"
)

// NewRouter builds the Gin engine, wires middleware and registers all routes.
func NewRouter(db *gorm.DB, engine *images.Engine, cache imagecache.Store, hub *notifications.Hub) (*gin.Engine, error) {
	if db == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if engine == nil {
		return nil, fmt.Errorf("image engine must be provided")
	}
	if cache == nil {
		return nil, fmt.Errorf("image cache must be provided")
	}
	if hub == nil {
		return nil, fmt.Errorf("notification hub must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	// Basic rate limiting: 300 requests/minute per IP+path
	r.Use(middleware.RateLimit(300, time.Minute))

	r.GET("/health", handlers.Health())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// Projects
	projectHandler, err := handlers.NewProjectHandler(db, engine)
	if err != nil {
		return nil, err
	}
	taskHandler, err := handlers.NewTaskHandler(db, engine)
	if err != nil {
		return nil, err
	}

	projects := api.Group("/projects")
	{
		projects.GET("", projectHandler.List)
		projects.POST("", projectHandler.Create)
		projects.GET("/:id", projectHandler.Get)
		projects.PATCH("/:id", projectHandler.Update)
		projects.DELETE("/:id", projectHandler.Delete)
		projects.GET("/:id/board", taskHandler.Board)
		projects.GET("/:id/roadmap", taskHandler.Roadmap)
	}

	// Tasks and their subtasks
	subtaskHandler, err := handlers.NewSubtaskHandler(db, engine)
	if err != nil {
		return nil, err
	}

	tasks := api.Group("/tasks")
	{
		tasks.GET("", taskHandler.List)
		tasks.POST("", taskHandler.Create)
		tasks.GET("/:id", taskHandler.Get)
		tasks.PATCH("/:id", taskHandler.Update)
		tasks.POST("/:id/move", taskHandler.Move)
		tasks.DELETE("/:id", taskHandler.Delete)
		tasks.GET("/:id/subtasks", subtaskHandler.ListForTask)
		tasks.POST("/:id/subtasks", subtaskHandler.Create)
	}

	subtasks := api.Group("/subtasks")
	{
		subtasks.GET("/:id", subtaskHandler.Get)
		subtasks.PATCH("/:id", subtaskHandler.Update)
		subtasks.POST("/:id/toggle", subtaskHandler.Toggle)
		subtasks.DELETE("/:id", subtaskHandler.Delete)
	}

	// Images and the cache admin surface
	imageHandler, err := handlers.NewImageHandler(db, engine, cache)
	if err != nil {
		return nil, err
	}

	imagesGroup := api.Group("/images")
	{
		imagesGroup.GET("/cache/stats", imageHandler.CacheStats)
		imagesGroup.POST("/cache/sweep", imageHandler.CacheSweep)
		imagesGroup.GET("/:id", imageHandler.Get)
	}

	// Notifications
	notificationHandler, err := handlers.NewNotificationHandler(db, hub)
	if err != nil {
		return nil, err
	}

	notificationsGroup := api.Group("/notifications")
	{
		notificationsGroup.GET("", notificationHandler.List)
		notificationsGroup.GET("/stream", notificationHandler.Stream)
		notificationsGroup.POST("/read-all", notificationHandler.MarkAllRead)
		notificationsGroup.POST("/:id/read", notificationHandler.MarkRead)
		notificationsGroup.POST("/:id/unread", notificationHandler.MarkUnread)
		notificationsGroup.DELETE("/:id", notificationHandler.Delete)
	}

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
