package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/easayliu/alist-photo-relay/docs"
	"github.com/easayliu/alist-photo-relay/internal/application/container"
	"github.com/easayliu/alist-photo-relay/internal/interfaces/http/routes"
	"github.com/easayliu/alist-photo-relay/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const shutdownGrace = 5 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and the task scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	// 初始化服务容器
	c, err := container.NewServiceContainer(cfg)
	if err != nil {
		logger.Error("Failed to initialize service container", "error", err)
		return err
	}

	router := routes.NewRoutesConfig(c.GetTaskManager(), c.MetricsHandler(), version).NewRouter()

	// 关闭时取消所有请求上下文，SSE 长连接随之结束
	baseCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()

	srv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelRequests)

	// 设置信号处理
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "address", srv.Addr, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	startErr := c.Start(sigCtx)
	if startErr != nil {
		logger.Error("Failed to start background services", "error", startErr)
		stop()
	}

	select {
	case <-sigCtx.Done():
	case err, ok := <-serverErr:
		if ok {
			logger.Error("Server failed", "error", err)
			c.Shutdown(context.Background())
			return err
		}
	}

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Scheduler.StopTimeout+shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", "error", err)
	}
	c.Shutdown(shutdownCtx)

	logger.Info("Server stopped")
	return startErr
}
