package cache

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/hitoshi/taskman/internal/model"
)

// FetchFunc はキャッシュミスしたユーザーIDの集合を上流から一括取得する関数。
// 存在しないIDは結果マップに含めない。
type FetchFunc func(ctx context.Context, userIDs []string) (map[string]*model.Identity, error)

// FlightGroup は同一キー集合への並行フェッチを合流させるsingle-flightラッパー。
//
// フライトのキーはソート済みユーザーID集合の連結で決まる。同じ未解決IDを求める
// 並行呼び出しはウィンドウ内で1回の上流フェッチを共有し、全員が同じ結果を受け取る。
// 1回のresolve呼び出しが発行するストアクエリは常に1つのバッチにまとまる。
type FlightGroup struct {
	group singleflight.Group
}

// NewFlightGroup はFlightGroupを生成する。
func NewFlightGroup() *FlightGroup {
	return &FlightGroup{}
}

// FetchBatch はuserIDsの一括フェッチをsingle-flightで実行する。
// 先行フライトが存在する場合は合流し、その結果を共有する。
// コンテキストのキャンセル・タイムアウト時はフライトの完了を待たずに復帰する
// （フライト自体は先頭呼び出し元のコンテキストで継続する）。
func (g *FlightGroup) FetchBatch(ctx context.Context, userIDs []string, fetch FetchFunc) (map[string]*model.Identity, error) {
	if len(userIDs) == 0 {
		return map[string]*model.Identity{}, nil
	}

	sorted := make([]string, len(userIDs))
	copy(sorted, userIDs)
	sort.Strings(sorted)
	key := strings.Join(sorted, ",")

	ch := g.group.DoChan(key, func() (any, error) {
		return fetch(ctx, sorted)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(map[string]*model.Identity), nil
	}
}
