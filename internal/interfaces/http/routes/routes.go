package routes

import (
	"net/http"

	"github.com/easayliu/alist-photo-relay/internal/application/contracts"
	"github.com/easayliu/alist-photo-relay/internal/interfaces/http/handlers"
	"github.com/easayliu/alist-photo-relay/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// TaskManager 路由依赖的任务编排能力
type TaskManager interface {
	contracts.TaskService
	RunningCount() int
}

// RoutesConfig 路由配置
type RoutesConfig struct {
	tasks   TaskManager
	metrics http.Handler
	version string
}

// NewRoutesConfig 创建路由配置，metrics 为 nil 时不注册 /metrics
func NewRoutesConfig(tasks TaskManager, metrics http.Handler, version string) *RoutesConfig {
	return &RoutesConfig{
		tasks:   tasks,
		metrics: metrics,
		version: version,
	}
}

// NewRouter 创建带全局中间件的路由
func (rc *RoutesConfig) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoverMiddleware())
	router.Use(middleware.RequestLogger())
	rc.SetupRoutes(router)
	return router
}

// SetupRoutes 设置路由
func (rc *RoutesConfig) SetupRoutes(router *gin.Engine) {
	healthHandler := handlers.NewHealthHandler(rc.tasks, rc.version)
	taskHandler := handlers.NewTaskHandler(rc.tasks)
	eventHandler := handlers.NewEventHandler(rc.tasks)

	// Swagger文档路由
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	if rc.metrics != nil {
		router.GET("/metrics", gin.WrapH(rc.metrics))
	}

	// API 路由组
	api := router.Group("/api/v1")
	api.Use(middleware.ErrorHandlerMiddleware())
	{
		// 健康检查
		api.GET("/health", healthHandler.HealthCheck)

		// 任务相关路由
		tasks := api.Group("/tasks")
		{
			tasks.GET("", taskHandler.ListTasks)
			tasks.GET("/:id/status", taskHandler.GetTaskStatus)
			tasks.POST("/:id/start", taskHandler.StartTask)
			tasks.POST("/:id/stop", taskHandler.StopTask)
		}

		// 事件流
		api.GET("/events", eventHandler.StreamEvents)
	}
}
