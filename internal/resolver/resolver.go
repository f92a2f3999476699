// Package resolver は作業アイテム上のidentity参照を表示用DTOへ解決するエンジンを提供する。
//
// 解決は 埋め込みSnapshot → キャッシュ → バッチ化したストアクエリ の優先順で行い、
// N件の参照（M ≤ N個の相異なるユーザーID）に対して発行するストアクエリは常に最大1回。
// どこにも見つからない参照はセンチネルDTOとなり、例外で描画を壊すことはない。
// 古いSnapshotは表示には使わず、重複排除したrepairタスクの投入だけを誘発する。
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hitoshi/taskman/internal/cache"
	"github.com/hitoshi/taskman/internal/model"
)

// defaultSnapshotTTL は種別ごとの設定が無い場合のスナップショットTTL。
const defaultSnapshotTTL = time.Hour

// IdentityFinder はIdentityストアポートの読み取りインターフェース。
// FindByIDsは1回のバッチクエリでなければならない。
type IdentityFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]*model.Identity, error)
}

// RepairEnqueuer はrepairタスク投入のインターフェース。
type RepairEnqueuer interface {
	Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error
}

// MetricsRecorder は解決メトリクスの記録インターフェース。nil許容。
type MetricsRecorder interface {
	RecordSnapshotHits(n int)
	RecordCacheHits(n int)
	RecordStoreQueries(n int)
	RecordSentinels(n int)
	RecordRepairEnqueued(n int)
	RecordResolveLatency(d time.Duration)
}

// Stats は1回の解決の集計値。TTLチューニングとテストの観測点として返す。
type Stats struct {
	SnapshotHits    int `json:"snapshot_hits"`
	CacheHits       int `json:"cache_hits"`
	StoreQueries    int `json:"store_queries"`
	BackgroundSyncs int `json:"background_syncs"`
}

// Options はResolverの動作パラメータ。
type Options struct {
	// SnapshotTTL は作業アイテム種別ごとのスナップショットTTL。
	// 未設定の種別はdefaultSnapshotTTLを使用する。
	SnapshotTTL map[model.WorkItemType]time.Duration
	// CacheTTL はキャッシュエントリのTTL。
	CacheTTL time.Duration
}

// Resolver はクロスストアidentity解決エンジン。
// キャッシュ・ストア・タスクキューはコンストラクタ注入のポートであり、
// グローバルへの暗黙アクセスは行わない。
type Resolver struct {
	store      cache.Store
	flight     *cache.FlightGroup
	identities IdentityFinder
	tasks      RepairEnqueuer
	logger     *slog.Logger
	metrics    MetricsRecorder
	opts       Options

	// 累積統計（プロセス生存期間）
	totalSnapshotHits    atomic.Int64
	totalCacheHits       atomic.Int64
	totalStoreQueries    atomic.Int64
	totalBackgroundSyncs atomic.Int64
}

// New はResolverを生成する。metricsはnilでもよい。
func New(
	store cache.Store,
	flight *cache.FlightGroup,
	identities IdentityFinder,
	tasks RepairEnqueuer,
	logger *slog.Logger,
	metrics MetricsRecorder,
	opts Options,
) *Resolver {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	return &Resolver{
		store:      store,
		flight:     flight,
		identities: identities,
		tasks:      tasks,
		logger:     logger,
		metrics:    metrics,
		opts:       opts,
	}
}

// refKey は（作業アイテムID, フィールド名）の組。
type refKey struct {
	itemID string
	field  string
}

// Resolve は作業アイテム群のidentity参照を一括解決する。
//
// 返り値のマップは itemID → フィールド名 → DTO。参照が無いフィールドはエントリ自体が無い。
// 空・空白の参照IDはストアアクセス前にInvalidReferenceとして拒否される（唯一のハードエラー）。
// ストア障害・タイムアウト時は該当参照のみセンチネルに縮退し、
// 解決済みの参照はそのまま返る（部分成功）。
func (r *Resolver) Resolve(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, Stats, error) {
	start := time.Now()
	stats := Stats{}
	result := make(map[string]map[string]model.IdentityDTO)

	// 1. 参照を fresh / needs-resolution に分割する
	fresh := make(map[refKey]model.IdentityDTO)
	need := make(map[refKey]string)
	staleItems := make(map[string]bool)
	now := time.Now()

	for _, item := range items {
		ttl := r.snapshotTTL(item.Type)
		for _, field := range ReferenceFields(item.Type) {
			userID, ok := item.Ref(field)
			if !ok {
				continue // 参照なしはスキップ
			}
			if strings.TrimSpace(userID) == "" {
				return nil, stats, model.NewInvalidReferenceError(item.ID, field)
			}

			key := refKey{itemID: item.ID, field: field}
			snap := item.Snapshot(field)

			if snap != nil && snap.UserID == userID && snap.Fresh(now, ttl) {
				fresh[key] = model.DTOFromSnapshot(snap)
				stats.SnapshotHits++
				continue
			}
			// 古い（欠落ではない）Snapshotだけがrepair対象になる
			if snap != nil {
				staleItems[item.ID] = true
			}
			need[key] = userID
		}
	}

	// 2. 相異なるユーザーIDを収集する
	distinct := make(map[string]bool, len(need))
	for _, userID := range need {
		distinct[userID] = true
	}

	// 3. キャッシュの一括読み取り
	identities := make(map[string]*model.Identity, len(distinct))
	var missing []string
	if len(distinct) > 0 {
		keys := make([]string, 0, len(distinct))
		for userID := range distinct {
			keys = append(keys, cache.IdentityKey(userID))
		}
		cached := r.store.MultiGet(ctx, keys)
		stats.CacheHits = len(cached)

		for userID := range distinct {
			if identity, ok := cached[cache.IdentityKey(userID)]; ok {
				identities[userID] = identity
			} else {
				missing = append(missing, userID)
			}
		}
	}

	// 4-5. ミス分を1回のバッチクエリで取得し、キャッシュへ書き戻す。
	// 同一IDへの並行フェッチはsingle-flightで合流する。
	if len(missing) > 0 {
		stats.StoreQueries = 1
		fetched, err := r.flight.FetchBatch(ctx, missing, r.fetchAndFill)
		if err != nil {
			// 失敗した参照はセンチネルに縮退する（部分成功）
			r.logger.Warn("identityストアのバッチクエリに失敗したためセンチネルに縮退します",
				slog.Int("missing_count", len(missing)),
				slog.String("error", err.Error()),
			)
		} else {
			for userID, identity := range fetched {
				identities[userID] = identity
			}
		}
	}

	// 6. 結果を組み立てる
	sentinels := 0
	for key, userID := range need {
		var dto model.IdentityDTO
		if identity, ok := identities[userID]; ok {
			dto = model.DTOFromIdentity(identity)
		} else {
			dto = model.SentinelDTO(userID)
			sentinels++
		}
		fieldMap := result[key.itemID]
		if fieldMap == nil {
			fieldMap = make(map[string]model.IdentityDTO)
			result[key.itemID] = fieldMap
		}
		fieldMap[key.field] = dto
	}
	for key, dto := range fresh {
		fieldMap := result[key.itemID]
		if fieldMap == nil {
			fieldMap = make(map[string]model.IdentityDTO)
			result[key.itemID] = fieldMap
		}
		fieldMap[key.field] = dto
	}

	// 7. 古いSnapshotを観測したアイテムにrepairタスクを投入する（アイテム単位で1件）
	stats.BackgroundSyncs = r.enqueueRepairs(ctx, staleItems, result)

	r.recordStats(stats, sentinels, time.Since(start))
	return result, stats, nil
}

// ResolveSingle は単一アイテム・単一フィールドの解決を行う（n=1のResolve）。
// バッチ経路と同じ分割・収集ロジックを通る。
// フィールドが宣言されていない、または参照が無い場合はok=falseを返す。
func (r *Resolver) ResolveSingle(ctx context.Context, item *model.WorkItem, field string) (model.IdentityDTO, bool, error) {
	if !HasReferenceField(item.Type, field) {
		return model.IdentityDTO{}, false, nil
	}
	if _, ok := item.Ref(field); !ok {
		return model.IdentityDTO{}, false, nil
	}

	result, _, err := r.Resolve(ctx, []*model.WorkItem{item})
	if err != nil {
		return model.IdentityDTO{}, false, err
	}
	dto, ok := result[item.ID][field]
	return dto, ok, nil
}

// Stats はプロセス起動以降の累積統計を返す。TTLチューニング用の観測点。
func (r *Resolver) Stats() Stats {
	return Stats{
		SnapshotHits:    int(r.totalSnapshotHits.Load()),
		CacheHits:       int(r.totalCacheHits.Load()),
		StoreQueries:    int(r.totalStoreQueries.Load()),
		BackgroundSyncs: int(r.totalBackgroundSyncs.Load()),
	}
}

// fetchAndFill はミスしたユーザーIDをストアから一括取得し、キャッシュへ書き戻す。
// single-flightのフライト本体として実行される。
func (r *Resolver) fetchAndFill(ctx context.Context, userIDs []string) (map[string]*model.Identity, error) {
	found, err := r.identities.FindByIDs(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("identityの一括取得に失敗しました: %w", err)
	}

	fetched := make(map[string]*model.Identity, len(found))
	for _, identity := range found {
		fetched[identity.ID] = identity
		r.store.Set(ctx, cache.IdentityKey(identity.ID), identity, r.opts.CacheTTL)
	}
	return fetched, nil
}

// enqueueRepairs は古いSnapshotを持つアイテムへのrepairタスクを投入する。
// 同一アイテムの複数フィールドが古くても投入は1件に重複排除される。
// より新しい値が得られなかった参照（センチネル）は投入対象にしない。
// 投入失敗はログに記録して握りつぶす（ベストエフォート）。
func (r *Resolver) enqueueRepairs(ctx context.Context, staleItems map[string]bool, result map[string]map[string]model.IdentityDTO) int {
	enqueued := 0
	for itemID := range staleItems {
		resolvedAny := false
		for _, dto := range result[itemID] {
			if dto.Resolved {
				resolvedAny = true
				break
			}
		}
		if !resolvedAny {
			continue
		}

		payload := model.SnapshotRepairPayload{ItemID: itemID}
		dedupKey := fmt.Sprintf("%s:%s", model.TaskSnapshotRepair, itemID)
		if err := r.tasks.Enqueue(ctx, model.TaskSnapshotRepair, payload, dedupKey); err != nil {
			r.logger.Warn("repairタスクの投入に失敗しました",
				slog.String("item_id", itemID),
				slog.String("error", err.Error()),
			)
			continue
		}
		enqueued++
	}
	return enqueued
}

// snapshotTTL は種別ごとのスナップショットTTLを返す。
func (r *Resolver) snapshotTTL(t model.WorkItemType) time.Duration {
	if ttl, ok := r.opts.SnapshotTTL[t]; ok && ttl > 0 {
		return ttl
	}
	return defaultSnapshotTTL
}

// recordStats は累積統計とメトリクスを更新する。
func (r *Resolver) recordStats(stats Stats, sentinels int, elapsed time.Duration) {
	r.totalSnapshotHits.Add(int64(stats.SnapshotHits))
	r.totalCacheHits.Add(int64(stats.CacheHits))
	r.totalStoreQueries.Add(int64(stats.StoreQueries))
	r.totalBackgroundSyncs.Add(int64(stats.BackgroundSyncs))

	if r.metrics != nil {
		r.metrics.RecordSnapshotHits(stats.SnapshotHits)
		r.metrics.RecordCacheHits(stats.CacheHits)
		r.metrics.RecordStoreQueries(stats.StoreQueries)
		r.metrics.RecordSentinels(sentinels)
		r.metrics.RecordRepairEnqueued(stats.BackgroundSyncs)
		r.metrics.RecordResolveLatency(elapsed)
	}
}
