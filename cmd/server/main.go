// Package main runs the ad broker HTTP server with the event WebSocket and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/aura-webinar/adbroker/config"
	"github.com/aura-webinar/adbroker/internal/ads"
	"github.com/aura-webinar/adbroker/internal/auth"
	"github.com/aura-webinar/adbroker/internal/middleware"
	"github.com/aura-webinar/adbroker/internal/realtime"
	"github.com/aura-webinar/adbroker/internal/sim"
	"github.com/aura-webinar/adbroker/pkg/redis"
	"github.com/aura-webinar/adbroker/pkg/response"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Event mirror (optional)
	var mirror realtime.RedisPublisher
	if cfg.Redis.Enabled() {
		rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		mirror = realtime.NewRedisPubSub(rdb.Client, cfg.Redis.EventsChannel, logger)
	}
	hub := realtime.NewHub(logger, mirror)

	// Vendor and lifecycle manager
	network := sim.New(sim.Config{
		FillLatency:      time.Duration(cfg.Simulator.FillLatencyMS) * time.Millisecond,
		FillRate:         cfg.Simulator.FillRate,
		ShowDuration:     time.Duration(cfg.Simulator.ShowDurationMS) * time.Millisecond,
		SurfaceAvailable: cfg.Simulator.SurfaceAvailable,
		Reward:           ads.Reward{Type: cfg.Simulator.RewardType, Amount: cfg.Simulator.RewardAmount},
	}, nil, logger.Named("sim"))
	manager := ads.NewManager(network, hub, ads.Config{
		LoadTimeout:    cfg.Ads.LoadTimeout(),
		SweepInterval:  cfg.Ads.SweepInterval(),
		AutoReload:     cfg.Ads.AutoReload,
		MaxLoadTimeout: cfg.Server.MaxLoadTimeout(),
	}, logger.Named("ads"))
	defer manager.Close()

	if cfg.Ads.InitializeOnStart {
		if _, err := manager.Initialize(ctx, cfg.Ads.AppID); err != nil {
			logger.Fatal("initialize ad sdk", zap.Error(err))
		}
	}

	var jwtService *auth.JWTService
	if cfg.JWT.Enabled() {
		jwtService = auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	} else {
		logger.Warn("JWT_SECRET is empty; settings and diagnostics are open")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      newRouter(cfg, manager, hub, jwtService, logger),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}
	sweeper := ads.NewSweeper(manager, cfg.Ads.SweepInterval(), nil, logger.Named("sweeper"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		if err := sweeper.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newRouter(cfg *config.Config, manager *ads.Manager, hub *realtime.Hub, jwtService *auth.JWTService, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		response.OK(c, gin.H{"status": "ok"})
	})

	var admin []gin.HandlerFunc
	var validate func(string) error
	if jwtService != nil {
		admin = []gin.HandlerFunc{middleware.JWT(jwtService), middleware.RequireRole(auth.RoleAdmin)}
		validate = jwtService.Check
	}

	adsHandler := ads.NewHandler(manager, logger)
	adsHandler.Routes(router.Group("/api/v1"), admin...)

	// WebSocket (token in query; no Authorization header required)
	router.GET("/events", realtime.ServeEvents(hub, logger, validate))
	return router
}

func newLogger(level string) *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		config.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := config.Build()
	return logger
}
