package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Cache
	// RedisAddrが空の場合はプロセス内メモリキャッシュにフォールバックする。
	RedisAddr string
	CacheTTL  time.Duration

	// Snapshot
	// スナップショットTTLは種別ごとの設定値であり、ハードコードしない。
	SnapshotTTLTask   time.Duration
	SnapshotTTLSprint time.Duration

	// Sync Worker
	SyncInterval      time.Duration
	SyncMaxConcurrent int
	SyncBatchSize     int

	// Task Queue
	TaskRetentionDays int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "")
	cfg.CacheTTL = getEnvDuration("CACHE_TTL", time.Hour)
	cfg.SnapshotTTLTask = getEnvDuration("SNAPSHOT_TTL_TASK", time.Hour)
	cfg.SnapshotTTLSprint = getEnvDuration("SNAPSHOT_TTL_SPRINT", time.Hour)
	cfg.SyncInterval = getEnvDuration("SYNC_INTERVAL", 15*time.Second)
	cfg.SyncMaxConcurrent = getEnvInt("SYNC_MAX_CONCURRENT", 10)
	cfg.SyncBatchSize = getEnvInt("SYNC_BATCH_SIZE", 100)
	cfg.TaskRetentionDays = getEnvInt("TASK_RETENTION_DAYS", 14)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
