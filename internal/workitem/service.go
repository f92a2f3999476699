// Package workitem は作業アイテム（タスク・スプリント）のドメインロジックを提供する。
package workitem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/preload"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/resolver"
	"github.com/hitoshi/taskman/internal/security"
)

const (
	// defaultListLimit は一覧取得のデフォルト件数。
	defaultListLimit = 50
	// maxListLimit は一覧取得の最大件数。
	maxListLimit = 200
)

// CreateInput は作業アイテム作成のリクエスト内容。
type CreateInput struct {
	Type        string
	Title       string
	Description string
	Status      string
	Refs        map[string]string
}

// Service は作業アイテムのサービス層。
// 取得系はすべてidentity参照を解決済みDTO付きで返す。
type Service struct {
	repo      repository.WorkItemRepository
	preloader *preload.Preloader
	sanitizer security.ContentSanitizerService
	enqueuer  repository.Enqueuer
	logger    *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	repo repository.WorkItemRepository,
	preloader *preload.Preloader,
	sanitizer security.ContentSanitizerService,
	enqueuer repository.Enqueuer,
	logger *slog.Logger,
) *Service {
	return &Service{
		repo:      repo,
		preloader: preloader,
		sanitizer: sanitizer,
		enqueuer:  enqueuer,
		logger:    logger,
	}
}

// List は作業アイテム一覧をidentity解決済みで返す。
// limitが0以下の場合はデフォルト、上限超過時は上限に丸める。
func (s *Service) List(ctx context.Context, limit, offset int) ([]*model.WorkItem, resolver.Stats, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	items, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, resolver.Stats{}, fmt.Errorf("作業アイテム一覧の取得に失敗しました: %w", err)
	}

	return s.preloader.Preload(ctx, items)
}

// Get は指定IDの作業アイテムをidentity解決済みで返す。
// 対象が存在しない場合はItemNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.WorkItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("作業アイテムの取得に失敗しました: %w", err)
	}
	if item == nil {
		return nil, model.NewItemNotFoundError(id)
	}

	resolved, _, err := s.preloader.Preload(ctx, []*model.WorkItem{item})
	if err != nil {
		return nil, err
	}
	return resolved[0], nil
}

// Create は新規作業アイテムを作成する。
// 参照フィールドは種別に宣言されたもののみ受け付け、空・空白の参照IDは拒否する。
// 説明文のHTMLは保存前にサニタイズされる。
func (s *Service) Create(ctx context.Context, input CreateInput) (*model.WorkItem, error) {
	itemType := model.WorkItemType(input.Type)
	if !itemType.Valid() {
		return nil, model.NewInvalidWorkItemTypeError(input.Type)
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, model.NewInvalidRequestError("titleは必須です")
	}

	id := uuid.NewString()
	refs := make(map[string]string, len(input.Refs))
	for field, userID := range input.Refs {
		if !resolver.HasReferenceField(itemType, field) {
			return nil, model.NewInvalidReferenceError(id, field)
		}
		if strings.TrimSpace(userID) == "" {
			return nil, model.NewInvalidReferenceError(id, field)
		}
		refs[field] = userID
	}

	status := input.Status
	if status == "" {
		status = "open"
	}

	now := time.Now()
	item := &model.WorkItem{
		ID:          id,
		Type:        itemType,
		Title:       title,
		Description: s.sanitizer.Sanitize(input.Description),
		Status:      status,
		Refs:        refs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, fmt.Errorf("作業アイテムの作成に失敗しました: %w", err)
	}

	// 埋め込みSnapshotは非同期に初期化する。投入失敗は作成の成否に影響させない
	if len(refs) > 0 {
		dedupKey := fmt.Sprintf("%s:%s", model.TaskSnapshotRepair, item.ID)
		payload := model.SnapshotRepairPayload{ItemID: item.ID}
		if err := s.enqueuer.Enqueue(ctx, model.TaskSnapshotRepair, payload, dedupKey); err != nil {
			s.logger.Warn("snapshot初期化タスクの投入に失敗しました",
				slog.String("item_id", item.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return item, nil
}
