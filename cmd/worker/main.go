// Package main tails the broker's Redis event mirror and writes each ad event as a structured log line.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/adbroker/config"
	"github.com/aura-webinar/adbroker/internal/ads"
	"github.com/aura-webinar/adbroker/internal/realtime"
	"github.com/aura-webinar/adbroker/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	if !cfg.Redis.Enabled() {
		logger.Fatal("REDIS_ADDR is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	pubsub := realtime.NewRedisPubSub(rdb.Client, cfg.Redis.EventsChannel, logger)
	cancel, err := pubsub.Subscribe(func(event string, payload []byte) {
		var ev ads.Event
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Warn("undecodable event", zap.String("event", event), zap.Error(err))
			return
		}
		fields := []zap.Field{
			zap.String("event", string(ev.Name)),
			zap.String("type", string(ev.Type)),
			zap.String("ad_unit_id", ev.UnitID),
		}
		if ev.Error != "" {
			fields = append(fields, zap.String("error", ev.Error))
		}
		if ev.Reward != nil {
			fields = append(fields, zap.String("reward_type", ev.Reward.Type), zap.Int("reward_amount", ev.Reward.Amount))
		}
		logger.Info("ad event", fields...)
	})
	if err != nil {
		logger.Fatal("subscribe", zap.Error(err))
	}
	defer cancel()

	logger.Info("worker started", zap.String("channel", cfg.Redis.EventsChannel))
	<-ctx.Done()
	logger.Info("worker stopped")
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
