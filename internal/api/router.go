package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/logger"
	"github.com/wfunc/pinball-game/internal/machine"
	"github.com/wfunc/pinball-game/internal/middleware"
	"github.com/wfunc/pinball-game/internal/repository"
	"github.com/wfunc/pinball-game/internal/utils"
	"github.com/wfunc/pinball-game/internal/websocket"
)

// ErrorResponse API错误响应
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Router 诊断API路由器
type Router struct {
	engine         *gin.Engine
	machine        *machine.Machine
	authHandler    *AuthHandler
	deviceHandler  *DeviceHandler
	logHandler     *LogHandler
	wsHandler      *websocket.Handler
	authMiddleware *middleware.AuthMiddleware
	wsPath         string
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *config.Config, db *gorm.DB, m *machine.Machine,
	wsHandler *websocket.Handler, log *zap.Logger) *Router {

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	jwtManager := utils.NewJWTManager(
		cfg.Security.JWT.Secret,
		time.Duration(cfg.Security.JWT.ExpireHours)*time.Hour,
		time.Duration(cfg.Security.JWT.RefreshHours)*time.Hour,
	)

	router := &Router{
		engine:         engine,
		machine:        m,
		authHandler:    NewAuthHandler(repository.NewOperatorRepository(db), jwtManager, log),
		deviceHandler:  NewDeviceHandler(m, repository.NewDeviceStatusRepository(db), log),
		logHandler:     NewLogHandler(repository.NewHardwareLogRepository(db), log),
		wsHandler:      wsHandler,
		authMiddleware: middleware.NewAuthMiddleware(jwtManager),
		wsPath:         cfg.WebSocket.Path,
		log:            log,
	}

	router.setupRoutes()
	return router
}

// requestLogger 请求日志中间件
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.LogRequest(c.Request.Method, c.Request.URL.Path,
			c.Writer.Status(), time.Since(start), c.ClientIP())
	}
}

// setupRoutes 设置路由
func (r *Router) setupRoutes() {
	// 健康检查
	r.engine.GET("/health", r.healthCheck)

	// 监控WebSocket
	r.engine.GET(r.wsPath, r.wsHandler.Handle)

	// Swagger文档（仅在 -tags swagger 时启用）
	registerSwaggerRoutes(r.engine)

	v1 := r.engine.Group("/api/v1")
	{
		// 认证相关路由（不需要认证）
		auth := v1.Group("/auth")
		{
			auth.POST("/login", r.authHandler.Login)
			auth.POST("/refresh", r.authHandler.RefreshToken)
		}

		// 诊断相关路由（需要认证）
		diag := v1.Group("")
		diag.Use(r.authMiddleware.RequireAuth())
		{
			devices := diag.Group("/devices")
			{
				devices.GET("", r.deviceHandler.List)
				devices.GET("/switches", r.deviceHandler.ListSwitches)
				devices.POST("/autofires/:name/enable", r.deviceHandler.EnableAutofire)
				devices.POST("/autofires/:name/disable", r.deviceHandler.DisableAutofire)
				devices.POST("/coils/:name/pulse", r.deviceHandler.PulseCoil)
				devices.POST("/servos/:name/position", r.deviceHandler.MoveServo)
				devices.POST("/ball-search/trigger", r.deviceHandler.TriggerBallSearch)
			}

			logs := diag.Group("/logs")
			{
				logs.GET("", r.logHandler.List)
				logs.GET("/recent", r.logHandler.Recent)
			}
		}
	}
}

// healthCheck 健康检查
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (r *Router) healthCheck(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":  "ok",
		"backend": r.machine.BackendName(),
		"time":    time.Now().Unix(),
	})
}

// Engine 返回Gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
