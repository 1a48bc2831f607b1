package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jengzang/legs-backend-go/internal/config"
	"github.com/jengzang/legs-backend-go/internal/handler"
	"github.com/jengzang/legs-backend-go/internal/middleware"
	"github.com/jengzang/legs-backend-go/internal/service"
)

// Services are the dependencies the routes are served from
type Services struct {
	Tasks *service.AnalysisTaskService
	Legs  *service.LegService
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logger(), gin.Recovery())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"message": "Legs Backend API is running",
		})
	})

	taskHandler := handler.NewAnalysisTaskHandler(svc.Tasks)
	legHandler := handler.NewLegHandler(svc.Legs)
	auth := middleware.Auth(cfg.JWTSecret)

	admin := r.Group("/api/admin", auth, middleware.RateLimit(30, time.Minute))
	{
		admin.POST("/jobs/:name", taskHandler.RunJob)
		admin.GET("/tasks/:id", taskHandler.GetTask)
	}

	v1 := r.Group("/api/v1")
	{
		v1.GET("/devices/:id/legs", legHandler.GetDeviceLegs)

		legs := v1.Group("/legs", auth)
		{
			legs.PUT("/:id/mode", legHandler.SetMode)
			legs.DELETE("/:id/mode", legHandler.DeleteMode)
		}
	}

	return r
}
