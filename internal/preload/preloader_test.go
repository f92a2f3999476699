package preload

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/hitoshi/taskman/internal/logger"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/resolver"
)

// --- モック ---

type mockResolver struct {
	resolveFn func(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error)
}

func (m *mockResolver) Resolve(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error) {
	return m.resolveFn(ctx, items)
}

// --- テスト ---

// TestPreload_AnnotatesItems は解決済みDTOがアイテムに付与されることを検証する。
func TestPreload_AnnotatesItems(t *testing.T) {
	r := &mockResolver{
		resolveFn: func(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error) {
			return map[string]map[string]model.IdentityDTO{
				"a": {"assignee": {UserID: "U1", Name: "Hitoshi", Resolved: true}},
			}, resolver.Stats{CacheHits: 1}, nil
		},
	}
	p := New(r, logger.Setup(io.Discard))

	items := []*model.WorkItem{
		{ID: "a", Type: model.WorkItemTask, Refs: map[string]string{"assignee": "U1"}},
		{ID: "b", Type: model.WorkItemTask},
	}

	annotated, stats, err := p.Preload(context.Background(), items)
	if err != nil {
		t.Fatalf("Preload returned error: %v", err)
	}

	if annotated[0].Resolved["assignee"].Name != "Hitoshi" {
		t.Errorf("expected DTO attached to item a, got %+v", annotated[0].Resolved)
	}
	if annotated[1].Resolved != nil {
		t.Errorf("item without references must stay unannotated, got %+v", annotated[1].Resolved)
	}
	if stats.CacheHits != 1 {
		t.Errorf("expected stats passthrough, got %+v", stats)
	}
}

// TestPreload_PropagatesResolverError は解決エラー（InvalidReference）が伝播することを検証する。
func TestPreload_PropagatesResolverError(t *testing.T) {
	wantErr := model.NewInvalidReferenceError("a", "assignee")
	r := &mockResolver{
		resolveFn: func(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error) {
			return nil, resolver.Stats{}, wantErr
		},
	}
	p := New(r, logger.Setup(io.Discard))

	_, _, err := p.Preload(context.Background(), []*model.WorkItem{{ID: "a", Type: model.WorkItemTask}})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected resolver error to propagate, got %v", err)
	}
}

// TestPreload_EmptyItems は空の入力が空のまま返ることを検証する。
func TestPreload_EmptyItems(t *testing.T) {
	r := &mockResolver{
		resolveFn: func(ctx context.Context, items []*model.WorkItem) (map[string]map[string]model.IdentityDTO, resolver.Stats, error) {
			return map[string]map[string]model.IdentityDTO{}, resolver.Stats{}, nil
		},
	}
	p := New(r, logger.Setup(io.Discard))

	annotated, _, err := p.Preload(context.Background(), nil)
	if err != nil {
		t.Fatalf("Preload returned error: %v", err)
	}
	if len(annotated) != 0 {
		t.Errorf("expected empty result, got %v", annotated)
	}
}
