package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wfunc/pinball-game/internal/api"
	"github.com/wfunc/pinball-game/internal/config"
	"github.com/wfunc/pinball-game/internal/database"
	"github.com/wfunc/pinball-game/internal/logger"
	"github.com/wfunc/pinball-game/internal/machine"
	"github.com/wfunc/pinball-game/internal/models"
	"github.com/wfunc/pinball-game/internal/repository"
	"github.com/wfunc/pinball-game/internal/utils"
	"github.com/wfunc/pinball-game/internal/websocket"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("pinball-game %s (build %s, commit %s)\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	// 加载配置
	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()

	// 初始化日志系统
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	logger.Info("正在启动弹珠机控制服务...",
		zap.String("version", Version),
		zap.String("machine", cfg.Machine.Name),
		zap.String("backend", cfg.Platform.Backend),
	)

	// 初始化数据库
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatal("数据库初始化失败", zap.Error(err))
	}
	defer database.Close()

	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(); err != nil {
			logger.Fatal("数据库迁移失败", zap.Error(err))
		}
	}

	// 首次启动写入默认运维账号
	if err := ensureDefaultOperator(cfg); err != nil {
		logger.Fatal("初始化运维账号失败", zap.Error(err))
	}

	// 装配整机
	m, err := machine.New(cfg, database.GetDB(), nil, logger.GetLogger())
	if err != nil {
		logger.Fatal("机器装配失败", zap.Error(err))
	}

	if err := m.Start(); err != nil {
		logger.Fatal("机器启动失败", zap.Error(err))
	}

	// 监控推送
	hub := websocket.NewHub(m.Events(), logger.WithModule("websocket"))
	go hub.Run()
	wsHandler := websocket.NewHandler(hub, &cfg.WebSocket, logger.WithModule("websocket"))

	// 诊断API
	router := api.NewRouter(cfg, database.GetDB(), m, wsHandler, logger.WithModule("api"))
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("诊断API已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP服务异常退出", zap.Error(err))
		}
	}()

	// 等待退出信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("收到退出信号，开始优雅关闭...")

	// 先停HTTP，再停机器
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP服务关闭失败", zap.Error(err))
	}

	if err := m.Stop(); err != nil {
		logger.Error("机器停机失败", zap.Error(err))
	}

	logger.Info("服务已安全关闭")
}

// ensureDefaultOperator 首次启动时写入默认运维账号
func ensureDefaultOperator(cfg *config.Config) error {
	repo := repository.NewOperatorRepository(database.GetDB())
	ctx := context.Background()

	count, err := repo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	password := cfg.Security.Operator.Password
	if password == "" {
		// 未配置密码则生成随机密码并打印一次
		password, err = utils.GenerateRandomString(16)
		if err != nil {
			return err
		}
		logger.Warn("未配置运维密码，已生成随机密码",
			zap.String("username", cfg.Security.Operator.Username),
			zap.String("password", password))
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	return repo.Create(ctx, &models.Operator{
		Username: cfg.Security.Operator.Username,
		Password: hash,
		Role:     "admin",
	})
}
