package repository

import (
	"context"
	"testing"
)

// PostgresIdentityRepoはIdentityRepositoryインターフェースを満たすことを検証
func TestPostgresIdentityRepo_ImplementsInterface(t *testing.T) {
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
}

// PostgresWorkItemRepoはWorkItemRepositoryインターフェースを満たすことを検証
func TestPostgresWorkItemRepo_ImplementsInterface(t *testing.T) {
	var _ WorkItemRepository = (*PostgresWorkItemRepo)(nil)
}

// PostgresTaskRepoはTaskRepositoryインターフェースを満たすことを検証
func TestPostgresTaskRepo_ImplementsInterface(t *testing.T) {
	var _ TaskRepository = (*PostgresTaskRepo)(nil)
	var _ Enqueuer = (*PostgresTaskRepo)(nil)
}

// NewPostgresIdentityRepoが正しく初期化されることを検証
func TestNewPostgresIdentityRepo_Initializes(t *testing.T) {
	repo := NewPostgresIdentityRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresWorkItemRepoが正しく初期化されることを検証
func TestNewPostgresWorkItemRepo_Initializes(t *testing.T) {
	repo := NewPostgresWorkItemRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresTaskRepoが正しく初期化されることを検証
func TestNewPostgresTaskRepo_Initializes(t *testing.T) {
	repo := NewPostgresTaskRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// ユニットテスト: FindByIDsが空集合でDBに触れずに復帰すること
func TestPostgresIdentityRepo_FindByIDs_EmptyIDs(t *testing.T) {
	repo := NewPostgresIdentityRepo(nil)

	// dbがnilでもクエリが発行されなければpanicしない
	identities, err := repo.FindByIDs(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identities != nil {
		t.Errorf("expected nil result for empty ids, got %v", identities)
	}
}
