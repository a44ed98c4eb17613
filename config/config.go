package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server    ServerConfig
	Ads       AdsConfig
	Simulator SimulatorConfig
	Redis     RedisConfig
	JWT       JWTConfig
	LogLevel  string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// responseMargin is write time left after the longest load a blocking request may wait for.
const responseMargin = time.Second

// MaxLoadTimeout is the longest load timeout a blocking load request can still answer within
// WriteTimeout. Zero means no write timeout.
func (c ServerConfig) MaxLoadTimeout() time.Duration {
	if c.WriteTimeout <= 0 {
		return 0
	}
	return time.Duration(c.WriteTimeout)*time.Second - responseMargin
}

// AdsConfig holds broker settings.
type AdsConfig struct {
	AppID             string
	LoadTimeoutSec    float64
	SweepIntervalSec  int
	AutoReload        bool
	InitializeOnStart bool
}

// LoadTimeout returns the configured load timeout as a duration.
func (c AdsConfig) LoadTimeout() time.Duration {
	return time.Duration(c.LoadTimeoutSec * float64(time.Second))
}

// SweepInterval returns the configured sweep interval as a duration.
func (c AdsConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// SimulatorConfig tunes the simulated vendor network used by cmd/server.
type SimulatorConfig struct {
	FillLatencyMS    int
	FillRate         float64 // 0..1
	ShowDurationMS   int
	SurfaceAvailable bool
	RewardType       string
	RewardAmount     int
}

// RedisConfig holds Redis connection settings. An empty Addr disables the event mirror.
type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	EventsChannel string
}

// Enabled reports whether a Redis address is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

// JWTConfig holds JWT signing and validation settings. An empty Secret disables auth.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// Enabled reports whether bearer auth is on.
func (c JWTConfig) Enabled() bool { return c.Secret != "" }

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 90),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Ads: AdsConfig{
			AppID:             getEnv("ADS_APP_ID", ""),
			LoadTimeoutSec:    getEnvFloat("ADS_LOAD_TIMEOUT_SEC", 30),
			SweepIntervalSec:  getEnvInt("ADS_SWEEP_INTERVAL_SEC", 60),
			AutoReload:        getEnvBool("ADS_AUTO_RELOAD", true),
			InitializeOnStart: getEnvBool("ADS_INITIALIZE_ON_START", false),
		},
		Simulator: SimulatorConfig{
			FillLatencyMS:    getEnvInt("SIM_FILL_LATENCY_MS", 300),
			FillRate:         clamp01(getEnvFloat("SIM_FILL_RATE", 1)),
			ShowDurationMS:   getEnvInt("SIM_SHOW_DURATION_MS", 5000),
			SurfaceAvailable: getEnvBool("SIM_SURFACE_AVAILABLE", true),
			RewardType:       getEnv("SIM_REWARD_TYPE", "coins"),
			RewardAmount:     getEnvInt("SIM_REWARD_AMOUNT", 10),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvInt("REDIS_DB", 0),
			EventsChannel: getEnv("REDIS_EVENTS_CHANNEL", "adbroker:events"),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", ""),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
	if limit := cfg.Server.MaxLoadTimeout(); limit > 0 && cfg.Ads.LoadTimeout() > limit {
		return nil, fmt.Errorf("ADS_LOAD_TIMEOUT_SEC=%v leaves no time to answer within WRITE_TIMEOUT_SEC=%d", cfg.Ads.LoadTimeoutSec, cfg.Server.WriteTimeout)
	}
	return cfg, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func clamp01(f float64) float64 {
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
