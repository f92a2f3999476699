// Package repository はデータ永続化のインターフェースを定義する。
//
// Identityストア（リレーショナル、正準）と作業アイテムストア（ドキュメント）は
// トランザクションで結合されない。両者の整合はresolver/syncerによる
// ベストエフォートのスナップショット同期でのみ保たれる。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// IdentityRepository はIdentity（正準ユーザーレコード）の永続化インターフェース。
type IdentityRepository interface {
	// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Identity, error)

	// FindByIDs は複数IDのIdentityを1回のクエリで一括取得する。
	// ID単位のループに分解してはならない。存在しないIDは結果に含まれないだけで、
	// エラーにはならない。
	FindByIDs(ctx context.Context, ids []string) ([]*model.Identity, error)

	// Update はIdentityを更新する。対象が存在しない場合はエラーを返す。
	Update(ctx context.Context, identity *model.Identity) error

	// Delete は指定IDのIdentityを削除する。対象が存在しない場合はエラーを返す。
	Delete(ctx context.Context, id string) error
}

// WorkItemRepository は作業アイテムドキュメントの永続化インターフェース。
type WorkItemRepository interface {
	// FindByID は指定IDの作業アイテムを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.WorkItem, error)

	// List は作業アイテム一覧を作成日時降順で取得する。
	List(ctx context.Context, limit, offset int) ([]*model.WorkItem, error)

	// Create は新規作業アイテムを作成する。
	Create(ctx context.Context, item *model.WorkItem) error

	// UpdateSnapshot は指定フィールドの埋め込みSnapshotを丸ごと置き換える。
	// Snapshot値の部分更新は行わない。
	UpdateSnapshot(ctx context.Context, itemID, field string, snap *model.Snapshot) error
}

// TaskRepository は遅延タスクキューの永続化インターフェース。
// at-least-once配送・順序保証なしのキューをPostgresのSKIP LOCKEDリースで実装する。
type TaskRepository interface {
	// Enqueue はタスクを投入する。dedupKeyが同じpendingタスクが既に存在する場合は
	// 何もしない（重複投入の排除）。
	Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error

	// LeaseBatch は実行可能なタスクを最大limit件リースし、attemptsを加算して返す。
	// 並行ワーカーとはFOR UPDATE SKIP LOCKEDで競合しない。
	// リースが期限切れしたrunningタスクも再リース対象になる（at-least-once）。
	LeaseBatch(ctx context.Context, limit int) ([]*model.Task, error)

	// MarkDone はタスクを完了状態にする。
	MarkDone(ctx context.Context, id string) error

	// Reschedule はタスクを失敗として記録し、次回試行時刻を設定してpendingに戻す。
	Reschedule(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error

	// MarkFailed はタスクを恒久失敗状態にする。
	MarkFailed(ctx context.Context, id string, lastError string) error
}

// Enqueuer はタスク投入のみを必要とする呼び出し元向けの縮小インターフェース。
type Enqueuer interface {
	Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error
}
