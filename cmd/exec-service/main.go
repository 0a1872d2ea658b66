package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"proctorhub/internal/auth"
	commonmw "proctorhub/internal/common/http/middleware"
	"proctorhub/internal/common/storage"
	"proctorhub/internal/metrics"
	"proctorhub/internal/sandbox/controller"
	"proctorhub/internal/sandbox/engine"
	"proctorhub/internal/sandbox/profile"
	"proctorhub/internal/sandbox/repository"
	"proctorhub/internal/sandbox/service"
	"proctorhub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/exec_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		return
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	registry, err := profile.NewRegistry(appCfg.Languages)
	if err != nil {
		logger.Error(context.Background(), "init language registry failed", zap.Error(err))
		return
	}

	questions, err := loadQuestions(appCfg.Questions.Path)
	if err != nil {
		logger.Error(context.Background(), "load question bank failed", zap.Error(err))
		return
	}

	var submissions *repository.SubmissionStore
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		submissions = repository.NewSubmissionStore(objStorage, appCfg.Submission.Bucket)
	}

	execSvc := service.NewExecService(appCfg.Exec, registry,
		engine.NewDockerEngine(), engine.NewSubprocessEngine(),
		service.NewStaticQuestions(questions))

	tokens := auth.NewTokenService(appCfg.Auth.Secret, appCfg.Auth.Issuer)
	httpServer := buildHTTPServer(appCfg.Server, execSvc, submissions, tokens)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "exec http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.ListenAndServe()
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
}

func buildHTTPServer(cfg ServerConfig, execSvc *service.ExecService, submissions *repository.SubmissionStore, tokens *auth.TokenService) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1/exec", auth.Middleware(tokens))
	execController := controller.NewExecController(execSvc, submissions)
	execController.RegisterRoutes(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		logger.Info(
			c.Request.Context(),
			"request completed",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}
