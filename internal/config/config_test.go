package config

import (
	"testing"
	"time"
)

// TestLoad_RequiredMissing は必須環境変数が未設定の場合にエラーになることを検証する。
func TestLoad_RequiredMissing(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when DATABASE_URL is not set")
	}
}

// TestLoad_Defaults はオプション項目のデフォルト値を検証する。
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/taskman?sslmode=disable")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RedisAddr != "" {
		t.Errorf("expected empty REDIS_ADDR default, got %q", cfg.RedisAddr)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("expected CACHE_TTL default 1h, got %v", cfg.CacheTTL)
	}
	if cfg.SnapshotTTLTask != time.Hour {
		t.Errorf("expected SNAPSHOT_TTL_TASK default 1h, got %v", cfg.SnapshotTTLTask)
	}
	if cfg.SnapshotTTLSprint != time.Hour {
		t.Errorf("expected SNAPSHOT_TTL_SPRINT default 1h, got %v", cfg.SnapshotTTLSprint)
	}
	if cfg.SyncInterval != 15*time.Second {
		t.Errorf("expected SYNC_INTERVAL default 15s, got %v", cfg.SyncInterval)
	}
	if cfg.SyncMaxConcurrent != 10 {
		t.Errorf("expected SYNC_MAX_CONCURRENT default 10, got %d", cfg.SyncMaxConcurrent)
	}
	if cfg.SyncBatchSize != 100 {
		t.Errorf("expected SYNC_BATCH_SIZE default 100, got %d", cfg.SyncBatchSize)
	}
	if cfg.TaskRetentionDays != 14 {
		t.Errorf("expected TASK_RETENTION_DAYS default 14, got %d", cfg.TaskRetentionDays)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected SERVER_PORT default 8080, got %q", cfg.ServerPort)
	}
}

// TestLoad_Overrides は環境変数による上書きを検証する。
func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/taskman?sslmode=disable")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SNAPSHOT_TTL_TASK", "30m")
	t.Setenv("SNAPSHOT_TTL_SPRINT", "2h")
	t.Setenv("SYNC_MAX_CONCURRENT", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("expected REDIS_ADDR override, got %q", cfg.RedisAddr)
	}
	if cfg.SnapshotTTLTask != 30*time.Minute {
		t.Errorf("expected SNAPSHOT_TTL_TASK 30m, got %v", cfg.SnapshotTTLTask)
	}
	if cfg.SnapshotTTLSprint != 2*time.Hour {
		t.Errorf("expected SNAPSHOT_TTL_SPRINT 2h, got %v", cfg.SnapshotTTLSprint)
	}
	if cfg.SyncMaxConcurrent != 3 {
		t.Errorf("expected SYNC_MAX_CONCURRENT 3, got %d", cfg.SyncMaxConcurrent)
	}
}

// TestLoad_InvalidDurationFallsBack は不正なduration指定がデフォルトにフォールバックすることを検証する。
func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/taskman?sslmode=disable")
	t.Setenv("CACHE_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.CacheTTL != time.Hour {
		t.Errorf("expected fallback to 1h, got %v", cfg.CacheTTL)
	}
}
