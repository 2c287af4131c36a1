package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/san-kum/aquascan/server/config"
	"github.com/san-kum/aquascan/server/gemini"
	"github.com/san-kum/aquascan/server/handlers"
	"github.com/san-kum/aquascan/server/metrics"
	"github.com/san-kum/aquascan/server/middleware"
	"github.com/san-kum/aquascan/server/processor"
	"github.com/san-kum/aquascan/server/usgs"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	analyzer    *processor.Analyzer
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	cfg := config.LoadConfig()

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	metrics.Register()

	server := NewServer(cfg, logger)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.Bool("gemini_configured", server.analyzer.GeminiConfigured()),
			zap.String("mongo_uri", cfg.MaskedDatabaseURI()))

		var err error
		if cfg.Security.EnableHTTPS {
			err = srv.ListenAndServeTLS(cfg.Security.CertFile, cfg.Security.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	server.rateLimiter.Shutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited", zap.Int64("total_analyses", server.analyzer.GetStats().TotalAnalyses))
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "json" {
		zcfg = zap.NewProductionConfig()
	} else {
		zcfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		zcfg.Level = level
	}

	return zcfg.Build()
}

func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	vision := gemini.NewClient(cfg.Gemini, logger)
	sensors := usgs.NewClient(cfg.USGS, logger)
	analyzer := processor.NewAnalyzer(vision, sensors, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.Gzip())
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
	router.Use(middleware.InputValidation())
	router.Use(middleware.TimeoutHandler(cfg.Security.RequestTimeout))

	analyzeHandler := handlers.NewAnalyzeHandler(analyzer, logger)
	wsHandler := handlers.NewWebSocketHandler(analyzer, cfg.Security.AllowedOrigins, cfg.Security.RequestTimeout, logger)

	setupRoutes(router, analyzeHandler, wsHandler, rateLimiter)

	return &Server{
		router:      router,
		logger:      logger,
		analyzer:    analyzer,
		rateLimiter: rateLimiter,
		config:      cfg,
	}
}

func setupRoutes(router *gin.Engine, analyzeHandler *handlers.AnalyzeHandler, wsHandler *handlers.WebSocketHandler, rateLimiter *middleware.RateLimiter) {
	router.GET("/health", analyzeHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/ws", rateLimiter.RateLimit(), wsHandler.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", analyzeHandler.Health)

		limited := api.Group("/")
		limited.Use(rateLimiter.RateLimit())
		{
			limited.POST("/analyze", analyzeHandler.Analyze)
			limited.GET("/stats", analyzeHandler.GetStats)
		}
	}
}
