// Package preload はリクエスト処理コード向けの一括identity解決ラッパーを提供する。
package preload

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/resolver"
)

// ItemResolver はPreloaderが必要とする解決エンジンのインターフェース。
type ItemResolver interface {
	Resolve(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error)
}

// Preloader は一覧表示のためのidentity一括解決オーケストレーション。
// 解決エンジンへの薄いラッパーで、アイテムへのDTO付与と統計のログ出力のみを担う。
type Preloader struct {
	resolver ItemResolver
	logger   *slog.Logger
}

// New はPreloaderを生成する。
func New(r ItemResolver, logger *slog.Logger) *Preloader {
	return &Preloader{resolver: r, logger: logger}
}

// Preload はアイテム群のidentity参照を1パスで解決し、各アイテムの
// Resolvedフィールドに付与して返す。解決統計も併せて返す。
func (p *Preloader) Preload(ctx context.Context, items []*model.WorkItem) ([]*model.WorkItem, resolver.Stats, error) {
	start := time.Now()

	resolved, stats, err := p.resolver.Resolve(ctx, items)
	if err != nil {
		return nil, stats, err
	}

	for _, item := range items {
		if fields, ok := resolved[item.ID]; ok {
			item.Resolved = fields
		}
	}

	p.logger.Info("identityのプリロードが完了しました",
		slog.Int("item_count", len(items)),
		slog.Int("snapshot_hits", stats.SnapshotHits),
		slog.Int("cache_hits", stats.CacheHits),
		slog.Int("store_queries", stats.StoreQueries),
		slog.Int("background_syncs", stats.BackgroundSyncs),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return items, stats, nil
}
