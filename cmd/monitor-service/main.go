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

	"proctorhub/internal/audit"
	"proctorhub/internal/auth"
	"proctorhub/internal/common/cache"
	commonmw "proctorhub/internal/common/http/middleware"
	"proctorhub/internal/common/mq"
	"proctorhub/internal/common/storage"
	"proctorhub/internal/integrity"
	"proctorhub/internal/metrics"
	"proctorhub/internal/monitor/controller"
	"proctorhub/internal/monitor/repository"
	"proctorhub/internal/monitor/service"
	"proctorhub/internal/realtime"
	"proctorhub/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/monitor_service.yaml"

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

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		logger.Error(context.Background(), "init redis failed", zap.Error(err))
		return
	}
	defer func() {
		_ = redisCache.Close()
	}()

	signer, err := integrity.NewSigner(appCfg.Integrity.Secret)
	if err != nil {
		logger.Error(context.Background(), "init signer failed", zap.Error(err))
		return
	}

	var queue mq.MessageQueue
	if len(appCfg.Kafka.Brokers) > 0 {
		kafkaQueue, err := mq.NewKafkaQueue(appCfg.Kafka)
		if err != nil {
			logger.Error(context.Background(), "init kafka failed", zap.Error(err))
			return
		}
		defer func() {
			_ = kafkaQueue.Close()
		}()
		queue = kafkaQueue
	}

	var archiver *audit.Archiver
	if appCfg.MinIO.Endpoint != "" {
		objStorage, err := storage.NewMinIOStorage(appCfg.MinIO)
		if err != nil {
			logger.Error(context.Background(), "init minio failed", zap.Error(err))
			return
		}
		archiver = audit.NewArchiver(objStorage, appCfg.Audit.Bucket)
	}

	hub := realtime.NewHub()
	router := realtime.NewRouter(hub)
	tokens := auth.NewTokenService(appCfg.Auth.Secret, appCfg.Auth.Issuer)

	eventRepo := repository.NewEventRepository(redisCache)
	exporter := repository.NewEventPublisher(queue)
	trust := service.NewTrustEngine()
	liveness := service.NewLivenessTracker(appCfg.Monitor.HeartbeatTolerance)
	narrator := service.NewModelNarrator(appCfg.Narrator)

	monitorSvc := service.NewMonitorService(appCfg.Monitor, signer, trust, liveness,
		eventRepo, exporter, router, narrator)
	assembler := audit.NewAssembler(monitorSvc, eventRepo, signer)

	httpServer := buildHTTPServer(appCfg.Server, monitorSvc, assembler, archiver, hub, router, tokens)

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "monitor http server started", zap.String("addr", appCfg.Server.Addr))
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

func buildHTTPServer(
	cfg ServerConfig,
	monitorSvc *service.MonitorService,
	assembler audit.Assembler,
	archiver *audit.Archiver,
	hub *realtime.Hub,
	rtRouter *realtime.Router,
	tokens *auth.TokenService,
) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(requestLogger())

	router.GET("/metrics", metrics.Handler())

	api := router.Group("/api/v1/monitor", auth.Middleware(tokens))
	monitorController := controller.NewMonitorController(monitorSvc, assembler, archiver)
	monitorController.RegisterRoutes(api)

	wsController := realtime.NewWSController(hub, rtRouter, tokens, monitorSvc)
	wsController.RegisterRoutes(&router.RouterGroup)

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
