// Package cache はIdentity解決用のキャッシュポートを提供する。
//
// バックエンド（Redisまたはプロセス内メモリ）に障害が起きた場合、
// すべての操作はエラーを返さず「全ミスのキャッシュ」として振る舞う。
// 呼び出し元はキャッシュが空の場合と同じ経路で処理を継続できる。
package cache

import (
	"context"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// identityKeyPrefix はIdentityキャッシュエントリのキープレフィックス。
const identityKeyPrefix = "identity:"

// IdentityKey はユーザーIDからキャッシュキーを生成する。
func IdentityKey(userID string) string {
	return identityKeyPrefix + userID
}

// Store はTTL付きkey/valueキャッシュのインターフェース。
// MultiGetで見つからないキーは結果マップに含まれないだけで、エラーにはならない。
// バックエンド障害時は全操作がミス/no-opに縮退する。
type Store interface {
	// Get は指定キーのIdentityを返す。ミスまたは障害時はok=false。
	Get(ctx context.Context, key string) (*model.Identity, bool)

	// MultiGet は複数キーを一括取得する。ヒットしたキーのみ結果に含まれる。
	MultiGet(ctx context.Context, keys []string) map[string]*model.Identity

	// Set はIdentityをTTL付きで書き込む。常に値全体の置き換えで、部分更新は行わない。
	Set(ctx context.Context, key string, identity *model.Identity, ttl time.Duration)

	// Delete は指定キーのエントリを削除する。
	Delete(ctx context.Context, key string)
}
