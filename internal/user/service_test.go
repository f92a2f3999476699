package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hitoshi/taskman/internal/model"
)

// --- モック ---

type mockIdentityRepo struct {
	identities map[string]*model.Identity
	updated    []*model.Identity
	deleted    []string
	updateErr  error
	deleteErr  error
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	return m.identities[id], nil
}

func (m *mockIdentityRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Identity, error) {
	return nil, nil
}

func (m *mockIdentityRepo) Update(ctx context.Context, identity *model.Identity) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updated = append(m.updated, identity)
	return nil
}

func (m *mockIdentityRepo) Delete(ctx context.Context, id string) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.deleted = append(m.deleted, id)
	return nil
}

type enqueueCall struct {
	taskType model.TaskType
	dedupKey string
}

type mockEnqueuer struct {
	calls []enqueueCall
	err   error
}

func (m *mockEnqueuer) Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error {
	if m.err != nil {
		return m.err
	}
	m.calls = append(m.calls, enqueueCall{taskType: taskType, dedupKey: dedupKey})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// --- テスト ---

func TestUpdate_CommitsThenEnqueuesSync(t *testing.T) {
	repo := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎", Email: "tanaka@example.com"},
	}}
	enq := &mockEnqueuer{}
	s := NewService(repo, enq, testLogger())

	got, err := s.Update(context.Background(), "u1", UpdateInput{Name: "田中次郎"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	if got.Name != "田中次郎" {
		t.Errorf("Name = %q, want 田中次郎", got.Name)
	}
	if got.Email != "tanaka@example.com" {
		t.Errorf("未指定フィールドが上書きされた: %q", got.Email)
	}
	if len(repo.updated) != 1 {
		t.Fatalf("updated = %d件, want 1件", len(repo.updated))
	}
	if len(enq.calls) != 1 {
		t.Fatalf("enqueue = %d件, want 1件", len(enq.calls))
	}
	if enq.calls[0].taskType != model.TaskIdentitySync {
		t.Errorf("taskType = %v, want identity.sync", enq.calls[0].taskType)
	}
	if enq.calls[0].dedupKey != "identity.sync:u1" {
		t.Errorf("dedupKey = %q, want identity.sync:u1", enq.calls[0].dedupKey)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := NewService(&mockIdentityRepo{identities: map[string]*model.Identity{}}, &mockEnqueuer{}, testLogger())

	_, err := s.Update(context.Background(), "missing", UpdateInput{Name: "x"})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestUpdate_EnqueueFailureDoesNotFailUpdate(t *testing.T) {
	repo := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎"},
	}}
	enq := &mockEnqueuer{err: errors.New("キュー障害")}
	s := NewService(repo, enq, testLogger())

	if _, err := s.Update(context.Background(), "u1", UpdateInput{Name: "新しい名前"}); err != nil {
		t.Errorf("タスク投入失敗がUpdateを失敗させた: %v", err)
	}
	if len(repo.updated) != 1 {
		t.Errorf("updated = %d件, want 1件", len(repo.updated))
	}
}

func TestDelete_CommitsThenEnqueuesDelete(t *testing.T) {
	repo := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎"},
	}}
	enq := &mockEnqueuer{}
	s := NewService(repo, enq, testLogger())

	if err := s.Delete(context.Background(), "u1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if len(repo.deleted) != 1 || repo.deleted[0] != "u1" {
		t.Errorf("deleted = %v, want [u1]", repo.deleted)
	}
	if len(enq.calls) != 1 || enq.calls[0].dedupKey != "identity.delete:u1" {
		t.Errorf("enqueue = %+v, want identity.delete:u1", enq.calls)
	}
}

func TestDelete_NotFound(t *testing.T) {
	s := NewService(&mockIdentityRepo{identities: map[string]*model.Identity{}}, &mockEnqueuer{}, testLogger())

	err := s.Delete(context.Background(), "missing")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "USER_NOT_FOUND" {
		t.Errorf("err = %v, want USER_NOT_FOUND", err)
	}
}

func TestGet_ReturnsIdentity(t *testing.T) {
	repo := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎"},
	}}
	s := NewService(repo, &mockEnqueuer{}, testLogger())

	got, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "田中太郎" {
		t.Errorf("Name = %q, want 田中太郎", got.Name)
	}
}
