package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// memoryEntry はメモリキャッシュの1エントリ。
type memoryEntry struct {
	identity  *model.Identity
	expiresAt time.Time
}

// MemoryStore はプロセス内メモリのキャッシュ実装。
// REDIS_ADDR未設定のデプロイとテストで使用する。
// 期限切れエントリは読み取り時に破棄する（遅延削除）。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
	}
}

// Get は指定キーのIdentityを返す。期限切れはミス扱い。
func (s *MemoryStore) Get(ctx context.Context, key string) (*model.Identity, bool) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return entry.identity, true
}

// MultiGet は複数キーを一括取得する。ヒットしたキーのみ結果に含まれる。
func (s *MemoryStore) MultiGet(ctx context.Context, keys []string) map[string]*model.Identity {
	result := make(map[string]*model.Identity)
	for _, key := range keys {
		if identity, ok := s.Get(ctx, key); ok {
			result[key] = identity
		}
	}
	return result
}

// Set はIdentityをTTL付きで書き込む。
func (s *MemoryStore) Set(ctx context.Context, key string, identity *model.Identity, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{
		identity:  identity,
		expiresAt: time.Now().Add(ttl),
	}
}

// Delete は指定キーのエントリを削除する。
func (s *MemoryStore) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
