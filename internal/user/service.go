// Package user はIdentity（正準ユーザーレコード）のドメインロジックを提供する。
//
// Identityの更新・削除はリレーショナルストアへのコミットが正であり、
// キャッシュや埋め込みSnapshotへの伝播は遅延タスク経由のベストエフォート。
// タスク投入の失敗がIdentity変更自体を失敗させることはない。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// UpdateInput はIdentity更新のリクエスト内容。
type UpdateInput struct {
	Name      string
	Email     string
	AvatarURL string
	Role      string
}

// Service はIdentity管理のサービス層。
type Service struct {
	repo     repository.IdentityRepository
	enqueuer repository.Enqueuer
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.IdentityRepository, enqueuer repository.Enqueuer, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// Get は指定IDのIdentityを返す。対象が存在しない場合はUserNotFoundエラーを返す。
func (s *Service) Get(ctx context.Context, id string) (*model.Identity, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identityの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return identity, nil
}

// Update はIdentityを更新し、キャッシュ・Snapshot伝播用の同期タスクを投入する。
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*model.Identity, error) {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("identityの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return nil, model.NewUserNotFoundError(id)
	}

	if name := strings.TrimSpace(input.Name); name != "" {
		identity.Name = name
	}
	if email := strings.TrimSpace(input.Email); email != "" {
		identity.Email = email
	}
	if input.AvatarURL != "" {
		identity.AvatarURL = input.AvatarURL
	}
	if input.Role != "" {
		identity.Role = input.Role
	}
	identity.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, identity); err != nil {
		return nil, fmt.Errorf("identityの更新に失敗しました: %w", err)
	}

	s.enqueue(ctx, model.TaskIdentitySync, id)

	return identity, nil
}

// Delete はIdentityを削除し、キャッシュ無効化用の同期タスクを投入する。
// 削除後も作業アイテム側の参照と古いSnapshotはそのまま残り、
// 以後の解決でセンチネルDTOとして扱われる。
func (s *Service) Delete(ctx context.Context, id string) error {
	identity, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("identityの取得に失敗しました: %w", err)
	}
	if identity == nil {
		return model.NewUserNotFoundError(id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("identityの削除に失敗しました: %w", err)
	}

	s.enqueue(ctx, model.TaskIdentityDelete, id)

	return nil
}

// enqueue は同期タスクを投入する。失敗はログに記録して握りつぶす。
func (s *Service) enqueue(ctx context.Context, taskType model.TaskType, userID string) {
	dedupKey := fmt.Sprintf("%s:%s", taskType, userID)
	payload := model.IdentityTaskPayload{UserID: userID}
	if err := s.enqueuer.Enqueue(ctx, taskType, payload, dedupKey); err != nil {
		s.logger.Warn("同期タスクの投入に失敗しました",
			slog.String("task_type", string(taskType)),
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}
