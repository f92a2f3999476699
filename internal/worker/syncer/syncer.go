// Package syncer はIdentity変更イベントとsnapshot repairタスクを処理する
// バックグラウンドワーカーを提供する。
//
// ワーカーはリクエスト/レスポンスサイクルから独立した非同期プールで動く。
// タスクの配送はat-least-once・順序保証なしのため、各ハンドラは冪等であり、
// Snapshotはタスクが運ぶIDから現在値を再取得して丸ごと上書きする。
// 処理エラーはログに記録して握りつぶし、元のIdentity変更に影響させない。
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/taskman/internal/cache"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/resolver"
)

// MetricsRecorder は同期メトリクスの記録インターフェース。nil許容。
type MetricsRecorder interface {
	RecordSyncSuccess(taskType string)
	RecordSyncFailure(taskType string)
}

// Config はSyncerの動作パラメータ。
type Config struct {
	// CacheTTL はキャッシュ書き込み時のTTL。
	CacheTTL time.Duration
	// BatchSize は1サイクルでリースするタスクの最大件数。
	BatchSize int
	// MaxConcurrency はタスク処理の最大並列数。0以下はデフォルト値10。
	MaxConcurrency int
}

// Syncer はスナップショット同期ワーカー。
// タスクキューからリースしたタスクをsemaphoreパターンで並列処理する。
type Syncer struct {
	tasks      repository.TaskRepository
	identities repository.IdentityRepository
	items      repository.WorkItemRepository
	store      cache.Store
	logger     *slog.Logger
	metrics    MetricsRecorder
	config     Config
}

// New はSyncerを生成する。metricsはnilでもよい。
func New(
	tasks repository.TaskRepository,
	identities repository.IdentityRepository,
	items repository.WorkItemRepository,
	store cache.Store,
	logger *slog.Logger,
	metrics MetricsRecorder,
	config Config,
) *Syncer {
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 10
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = time.Hour
	}
	return &Syncer{
		tasks:      tasks,
		identities: identities,
		items:      items,
		store:      store,
		logger:     logger,
		metrics:    metrics,
		config:     config,
	}
}

// Start はティッカーでワーカーを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Syncer) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("スナップショット同期ワーカーを開始しました",
		slog.Duration("interval", interval),
		slog.Int("batch_size", s.config.BatchSize),
		slog.Int("max_concurrency", s.config.MaxConcurrency),
	)

	// 起動直後に1回実行
	if err := s.RunOnce(ctx); err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("スナップショット同期ワーカーを停止しました")
			return
		case <-ticker.C:
			if err := s.RunOnce(ctx); err != nil {
				s.logger.Error("同期サイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce は実行可能なタスクを1回リースし、並列で処理する。
// semaphoreパターンで最大並列数を制御する。
func (s *Syncer) RunOnce(ctx context.Context) error {
	start := time.Now()

	tasks, err := s.tasks.LeaseBatch(ctx, s.config.BatchSize)
	if err != nil {
		return err
	}

	if len(tasks) == 0 {
		return nil
	}

	s.logger.Info("同期サイクルを開始します",
		slog.Int("task_count", len(tasks)),
	)

	sem := make(chan struct{}, s.config.MaxConcurrency)
	var wg sync.WaitGroup

	for _, task := range tasks {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(t *model.Task) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			s.Process(ctx, t)
		}(task)
	}

	wg.Wait()

	s.logger.Info("同期サイクルが完了しました",
		slog.Int("task_count", len(tasks)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Process は1タスクを処理し、結果に応じて完了・再試行・恒久失敗を記録する。
// 処理エラーは呼び出し元に伝播させない。
func (s *Syncer) Process(ctx context.Context, task *model.Task) {
	err := s.handle(ctx, task)
	if err == nil {
		if markErr := s.tasks.MarkDone(ctx, task.ID); markErr != nil {
			s.logger.Error("タスクの完了記録に失敗しました",
				slog.String("task_id", task.ID),
				slog.String("error", markErr.Error()),
			)
		}
		if s.metrics != nil {
			s.metrics.RecordSyncSuccess(string(task.Type))
		}
		return
	}

	s.logger.Error("同期タスクの処理に失敗しました",
		slog.String("task_id", task.ID),
		slog.String("task_type", string(task.Type)),
		slog.Int("attempts", task.Attempts),
		slog.String("error", err.Error()),
	)
	if s.metrics != nil {
		s.metrics.RecordSyncFailure(string(task.Type))
	}

	if task.Attempts >= MaxAttempts {
		if markErr := s.tasks.MarkFailed(ctx, task.ID, err.Error()); markErr != nil {
			s.logger.Error("タスクの失敗記録に失敗しました",
				slog.String("task_id", task.ID),
				slog.String("error", markErr.Error()),
			)
		}
		return
	}

	next := time.Now().Add(CalculateBackoff(task.Attempts))
	if reschedErr := s.tasks.Reschedule(ctx, task.ID, next, err.Error()); reschedErr != nil {
		s.logger.Error("タスクの再スケジュールに失敗しました",
			slog.String("task_id", task.ID),
			slog.String("error", reschedErr.Error()),
		)
	}
}

// handle はタスク種別ごとの処理に振り分ける。
func (s *Syncer) handle(ctx context.Context, task *model.Task) error {
	switch task.Type {
	case model.TaskIdentitySync:
		return s.handleIdentitySync(ctx, task)
	case model.TaskIdentityDelete:
		return s.handleIdentityDelete(ctx, task)
	case model.TaskSnapshotRepair:
		return s.handleSnapshotRepair(ctx, task)
	default:
		// 未知の種別は再試行しても解決しないため成功扱いで破棄する
		s.logger.Warn("未知のタスク種別を破棄します",
			slog.String("task_id", task.ID),
			slog.String("task_type", string(task.Type)),
		)
		return nil
	}
}

// handleIdentitySync はIdentityの作成・更新を受けてキャッシュを即時更新する。
// これだけで以後の解決は新しい値になり、埋め込みSnapshotの書き直しを待たない。
func (s *Syncer) handleIdentitySync(ctx context.Context, task *model.Task) error {
	var payload model.IdentityTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}

	identity, err := s.identities.FindByID(ctx, payload.UserID)
	if err != nil {
		return fmt.Errorf("identityの取得に失敗しました: %w", err)
	}
	if identity == nil {
		// タスク処理時点で削除済みなら、キャッシュの残骸を消して完了とする（冪等）
		s.store.Delete(ctx, cache.IdentityKey(payload.UserID))
		return nil
	}

	s.store.Set(ctx, cache.IdentityKey(identity.ID), identity, s.config.CacheTTL)
	return nil
}

// handleIdentityDelete はIdentityの削除を受けてキャッシュエントリを削除する。
func (s *Syncer) handleIdentityDelete(ctx context.Context, task *model.Task) error {
	var payload model.IdentityTaskPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}

	s.store.Delete(ctx, cache.IdentityKey(payload.UserID))
	return nil
}

// handleSnapshotRepair は対象アイテムの埋め込みSnapshotを現在のIdentityで
// 丸ごと書き直し、synced_atを現在時刻にする。
//
// タスク投入後に別のrepairが先に完了していた場合（順序逆転）、
// synced_atがタスク作成時刻より新しいフィールドは上書きしない（単調性ガード）。
func (s *Syncer) handleSnapshotRepair(ctx context.Context, task *model.Task) error {
	var payload model.SnapshotRepairPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return fmt.Errorf("ペイロードのデコードに失敗しました: %w", err)
	}

	item, err := s.items.FindByID(ctx, payload.ItemID)
	if err != nil {
		return fmt.Errorf("作業アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		// アイテムが削除済みなら修復対象が無いので完了とする（冪等）
		return nil
	}

	// 対象フィールドの参照先を1回のバッチクエリで取得する
	var userIDs []string
	seen := make(map[string]bool)
	for _, field := range resolver.ReferenceFields(item.Type) {
		if userID, ok := item.Ref(field); ok && !seen[userID] {
			seen[userID] = true
			userIDs = append(userIDs, userID)
		}
	}
	if len(userIDs) == 0 {
		return nil
	}

	found, err := s.identities.FindByIDs(ctx, userIDs)
	if err != nil {
		return fmt.Errorf("identityの一括取得に失敗しました: %w", err)
	}
	identities := make(map[string]*model.Identity, len(found))
	for _, identity := range found {
		identities[identity.ID] = identity
	}

	now := time.Now()
	for _, field := range resolver.ReferenceFields(item.Type) {
		userID, ok := item.Ref(field)
		if !ok {
			continue
		}
		identity, ok := identities[userID]
		if !ok {
			// 参照先が消えたSnapshotは書き換えず、解決時のセンチネルに任せる
			continue
		}
		if snap := item.Snapshot(field); snap != nil && snap.SyncedAt.After(task.CreatedAt) {
			continue // 既により新しい同期が完了している
		}
		if err := s.items.UpdateSnapshot(ctx, item.ID, field, model.SnapshotFromIdentity(identity, now)); err != nil {
			return fmt.Errorf("snapshotの書き込みに失敗しました: field=%s: %w", field, err)
		}
	}

	return nil
}
