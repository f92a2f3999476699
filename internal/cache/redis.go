package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/taskman/internal/model"
)

// RedisStore はRedisをバックエンドとするキャッシュ実装。
// 値はJSONエンコードしたIdentityをTTL付きで保持する。
// Redisに到達できない場合もエラーを返さず、全操作がミス/no-opに縮退する。
type RedisStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewRedisStore はRedisStoreを生成する。
// 接続確認は行わない。到達不能なバックエンドは実行時にミスとして扱われるため、
// 起動をブロックしない。
func NewRedisStore(addr string, logger *slog.Logger) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{rdb: rdb, logger: logger}
}

// Close は接続プールを閉じる。
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

// Get は指定キーのIdentityを返す。ミス・障害・デコード失敗はok=false。
func (s *RedisStore) Get(ctx context.Context, key string) (*model.Identity, bool) {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false
	}
	if err != nil {
		s.logger.Warn("キャッシュ読み取りに失敗したためミスとして扱います",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}

	var identity model.Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		s.logger.Warn("キャッシュ値のデコードに失敗したためミスとして扱います",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false
	}
	return &identity, true
}

// MultiGet は複数キーをMGETで一括取得する。ヒットしたキーのみ結果に含まれる。
func (s *RedisStore) MultiGet(ctx context.Context, keys []string) map[string]*model.Identity {
	result := make(map[string]*model.Identity)
	if len(keys) == 0 {
		return result
	}

	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		s.logger.Warn("キャッシュ一括読み取りに失敗したため全ミスとして扱います",
			slog.Int("key_count", len(keys)),
			slog.String("error", err.Error()),
		)
		return result
	}

	for i, v := range values {
		if v == nil {
			continue
		}
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var identity model.Identity
		if err := json.Unmarshal([]byte(raw), &identity); err != nil {
			continue
		}
		result[keys[i]] = &identity
	}
	return result
}

// Set はIdentityをJSONエンコードしてTTL付きで書き込む。
func (s *RedisStore) Set(ctx context.Context, key string, identity *model.Identity, ttl time.Duration) {
	data, err := json.Marshal(identity)
	if err != nil {
		s.logger.Warn("キャッシュ値のエンコードに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return
	}
	if err := s.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		s.logger.Warn("キャッシュ書き込みに失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// Delete は指定キーのエントリを削除する。
func (s *RedisStore) Delete(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn("キャッシュ削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// compile-time interface check
var _ Store = (*RedisStore)(nil)
