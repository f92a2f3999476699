package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/cache"
	"github.com/hitoshi/taskman/internal/model"
)

// --- モック ---

type mockTaskRepo struct {
	mu          sync.Mutex
	leased      []*model.Task
	done        []string
	failed      []string
	rescheduled []string
	nextAttempt time.Time
	markDoneErr error
}

func (m *mockTaskRepo) Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error {
	return nil
}

func (m *mockTaskRepo) LeaseBatch(ctx context.Context, limit int) ([]*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tasks := m.leased
	m.leased = nil
	return tasks, nil
}

func (m *mockTaskRepo) MarkDone(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.done = append(m.done, id)
	return m.markDoneErr
}

func (m *mockTaskRepo) Reschedule(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rescheduled = append(m.rescheduled, id)
	m.nextAttempt = nextAttemptAt
	return nil
}

func (m *mockTaskRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, id)
	return nil
}

type mockIdentityRepo struct {
	identities map[string]*model.Identity
	findErr    error
}

func (m *mockIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	return m.identities[id], nil
}

func (m *mockIdentityRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Identity, error) {
	if m.findErr != nil {
		return nil, m.findErr
	}
	var result []*model.Identity
	for _, id := range ids {
		if identity, ok := m.identities[id]; ok {
			result = append(result, identity)
		}
	}
	return result, nil
}

func (m *mockIdentityRepo) Update(ctx context.Context, identity *model.Identity) error {
	return nil
}

func (m *mockIdentityRepo) Delete(ctx context.Context, id string) error {
	return nil
}

type snapshotWrite struct {
	itemID string
	field  string
	snap   *model.Snapshot
}

type mockItemRepo struct {
	mu     sync.Mutex
	items  map[string]*model.WorkItem
	writes []snapshotWrite
}

func (m *mockItemRepo) FindByID(ctx context.Context, id string) (*model.WorkItem, error) {
	return m.items[id], nil
}

func (m *mockItemRepo) List(ctx context.Context, limit, offset int) ([]*model.WorkItem, error) {
	return nil, nil
}

func (m *mockItemRepo) Create(ctx context.Context, item *model.WorkItem) error {
	return nil
}

func (m *mockItemRepo) UpdateSnapshot(ctx context.Context, itemID, field string, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, snapshotWrite{itemID: itemID, field: field, snap: snap})
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func mustPayload(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("ペイロードの生成に失敗: %v", err)
	}
	return b
}

func newTestSyncer(tasks *mockTaskRepo, identities *mockIdentityRepo, items *mockItemRepo, store cache.Store) *Syncer {
	return New(tasks, identities, items, store, testLogger(), nil, Config{
		CacheTTL:       time.Hour,
		BatchSize:      100,
		MaxConcurrency: 4,
	})
}

// --- テスト ---

func TestProcessIdentitySyncUpdatesCache(t *testing.T) {
	identities := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎", Email: "tanaka@example.com"},
	}}
	tasks := &mockTaskRepo{}
	store := cache.NewMemoryStore()
	s := newTestSyncer(tasks, identities, &mockItemRepo{}, store)

	task := &model.Task{
		ID:      "t1",
		Type:    model.TaskIdentitySync,
		Payload: mustPayload(t, model.IdentityTaskPayload{UserID: "u1"}),
	}
	s.Process(context.Background(), task)

	got, ok := store.Get(context.Background(), cache.IdentityKey("u1"))
	if !ok {
		t.Fatal("キャッシュが更新されていません")
	}
	if got.Name != "田中太郎" {
		t.Errorf("Name = %q, want 田中太郎", got.Name)
	}
	if len(tasks.done) != 1 || tasks.done[0] != "t1" {
		t.Errorf("done = %v, want [t1]", tasks.done)
	}
}

func TestProcessIdentitySyncDeletedUserEvictsCache(t *testing.T) {
	store := cache.NewMemoryStore()
	store.Set(context.Background(), cache.IdentityKey("u1"), &model.Identity{ID: "u1"}, time.Hour)

	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, &mockIdentityRepo{}, &mockItemRepo{}, store)

	task := &model.Task{
		ID:      "t1",
		Type:    model.TaskIdentitySync,
		Payload: mustPayload(t, model.IdentityTaskPayload{UserID: "u1"}),
	}
	s.Process(context.Background(), task)

	if _, ok := store.Get(context.Background(), cache.IdentityKey("u1")); ok {
		t.Error("削除済みユーザーのキャッシュが残っています")
	}
	if len(tasks.done) != 1 {
		t.Errorf("done = %v, want 1件", tasks.done)
	}
}

func TestProcessIdentityDeleteEvictsCache(t *testing.T) {
	store := cache.NewMemoryStore()
	store.Set(context.Background(), cache.IdentityKey("u1"), &model.Identity{ID: "u1"}, time.Hour)

	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, &mockIdentityRepo{}, &mockItemRepo{}, store)

	task := &model.Task{
		ID:      "t1",
		Type:    model.TaskIdentityDelete,
		Payload: mustPayload(t, model.IdentityTaskPayload{UserID: "u1"}),
	}
	s.Process(context.Background(), task)

	if _, ok := store.Get(context.Background(), cache.IdentityKey("u1")); ok {
		t.Error("キャッシュエントリが削除されていません")
	}
}

func TestProcessSnapshotRepairRewritesAllFields(t *testing.T) {
	identities := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "新しい名前"},
		"u2": {ID: "u2", Name: "佐藤花子"},
	}}
	items := &mockItemRepo{items: map[string]*model.WorkItem{
		"a": {
			ID:   "a",
			Type: model.WorkItemTask,
			Refs: map[string]string{"assignee": "u1", "reviewer": "u2"},
			Snapshots: map[string]*model.Snapshot{
				"assignee": {UserID: "u1", Name: "古い名前", SyncedAt: time.Now().Add(-2 * time.Hour)},
			},
		},
	}}
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, identities, items, cache.NewMemoryStore())

	task := &model.Task{
		ID:        "t1",
		Type:      model.TaskSnapshotRepair,
		Payload:   mustPayload(t, model.SnapshotRepairPayload{ItemID: "a"}),
		CreatedAt: time.Now(),
	}
	s.Process(context.Background(), task)

	if len(items.writes) != 2 {
		t.Fatalf("snapshot書き込み = %d件, want 2件", len(items.writes))
	}
	byField := make(map[string]*model.Snapshot)
	for _, w := range items.writes {
		if w.itemID != "a" {
			t.Errorf("itemID = %q, want a", w.itemID)
		}
		byField[w.field] = w.snap
	}
	if byField["assignee"] == nil || byField["assignee"].Name != "新しい名前" {
		t.Errorf("assignee snapshot = %+v, want 新しい名前", byField["assignee"])
	}
	if byField["reviewer"] == nil || byField["reviewer"].Name != "佐藤花子" {
		t.Errorf("reviewer snapshot = %+v, want 佐藤花子", byField["reviewer"])
	}
	if len(tasks.done) != 1 {
		t.Errorf("done = %v, want 1件", tasks.done)
	}
}

func TestProcessSnapshotRepairMonotonicGuard(t *testing.T) {
	// タスク作成後に別のrepairが先に完了した場合、新しいsnapshotを上書きしない
	taskCreated := time.Now().Add(-time.Minute)
	identities := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "新しい名前"},
	}}
	items := &mockItemRepo{items: map[string]*model.WorkItem{
		"a": {
			ID:   "a",
			Type: model.WorkItemTask,
			Refs: map[string]string{"assignee": "u1"},
			Snapshots: map[string]*model.Snapshot{
				"assignee": {UserID: "u1", Name: "新しい名前", SyncedAt: time.Now()},
			},
		},
	}}
	s := newTestSyncer(&mockTaskRepo{}, identities, items, cache.NewMemoryStore())

	task := &model.Task{
		ID:        "t1",
		Type:      model.TaskSnapshotRepair,
		Payload:   mustPayload(t, model.SnapshotRepairPayload{ItemID: "a"}),
		CreatedAt: taskCreated,
	}
	s.Process(context.Background(), task)

	if len(items.writes) != 0 {
		t.Errorf("snapshot書き込み = %d件, want 0件（単調性ガード）", len(items.writes))
	}
}

func TestProcessSnapshotRepairDeletedItemIsDone(t *testing.T) {
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, &mockIdentityRepo{}, &mockItemRepo{}, cache.NewMemoryStore())

	task := &model.Task{
		ID:      "t1",
		Type:    model.TaskSnapshotRepair,
		Payload: mustPayload(t, model.SnapshotRepairPayload{ItemID: "gone"}),
	}
	s.Process(context.Background(), task)

	if len(tasks.done) != 1 {
		t.Errorf("削除済みアイテムのrepairは完了扱いであるべき: done = %v", tasks.done)
	}
	if len(tasks.rescheduled) != 0 {
		t.Errorf("rescheduled = %v, want 0件", tasks.rescheduled)
	}
}

func TestProcessSnapshotRepairDanglingRefSkipped(t *testing.T) {
	// 参照先が消えたフィールドは書き換えず、他のフィールドは修復する
	identities := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u2": {ID: "u2", Name: "佐藤花子"},
	}}
	items := &mockItemRepo{items: map[string]*model.WorkItem{
		"a": {
			ID:   "a",
			Type: model.WorkItemTask,
			Refs: map[string]string{"assignee": "gone", "reviewer": "u2"},
		},
	}}
	s := newTestSyncer(&mockTaskRepo{}, identities, items, cache.NewMemoryStore())

	task := &model.Task{
		ID:      "t1",
		Type:    model.TaskSnapshotRepair,
		Payload: mustPayload(t, model.SnapshotRepairPayload{ItemID: "a"}),
	}
	s.Process(context.Background(), task)

	if len(items.writes) != 1 {
		t.Fatalf("snapshot書き込み = %d件, want 1件", len(items.writes))
	}
	if items.writes[0].field != "reviewer" {
		t.Errorf("field = %q, want reviewer", items.writes[0].field)
	}
}

func TestProcessFailureReschedulesWithBackoff(t *testing.T) {
	identities := &mockIdentityRepo{findErr: errors.New("接続エラー")}
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, identities, &mockItemRepo{}, cache.NewMemoryStore())

	before := time.Now()
	task := &model.Task{
		ID:       "t1",
		Type:     model.TaskIdentitySync,
		Payload:  mustPayload(t, model.IdentityTaskPayload{UserID: "u1"}),
		Attempts: 1,
	}
	s.Process(context.Background(), task)

	if len(tasks.rescheduled) != 1 {
		t.Fatalf("rescheduled = %v, want 1件", tasks.rescheduled)
	}
	if len(tasks.failed) != 0 {
		t.Errorf("failed = %v, want 0件", tasks.failed)
	}
	// 初回失敗は30秒バックオフ
	want := before.Add(30 * time.Second)
	if tasks.nextAttempt.Before(want) {
		t.Errorf("nextAttempt = %v, want %v 以降", tasks.nextAttempt, want)
	}
}

func TestProcessExhaustedAttemptsMarksFailed(t *testing.T) {
	identities := &mockIdentityRepo{findErr: errors.New("接続エラー")}
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, identities, &mockItemRepo{}, cache.NewMemoryStore())

	task := &model.Task{
		ID:       "t1",
		Type:     model.TaskIdentitySync,
		Payload:  mustPayload(t, model.IdentityTaskPayload{UserID: "u1"}),
		Attempts: MaxAttempts,
	}
	s.Process(context.Background(), task)

	if len(tasks.failed) != 1 || tasks.failed[0] != "t1" {
		t.Errorf("failed = %v, want [t1]", tasks.failed)
	}
	if len(tasks.rescheduled) != 0 {
		t.Errorf("rescheduled = %v, want 0件", tasks.rescheduled)
	}
}

func TestProcessMalformedPayloadRetries(t *testing.T) {
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, &mockIdentityRepo{}, &mockItemRepo{}, cache.NewMemoryStore())

	task := &model.Task{
		ID:       "t1",
		Type:     model.TaskIdentitySync,
		Payload:  json.RawMessage(`{invalid`),
		Attempts: 1,
	}
	s.Process(context.Background(), task)

	if len(tasks.done) != 0 {
		t.Errorf("done = %v, want 0件", tasks.done)
	}
	if len(tasks.rescheduled) != 1 {
		t.Errorf("rescheduled = %v, want 1件", tasks.rescheduled)
	}
}

func TestProcessUnknownTypeDiscarded(t *testing.T) {
	tasks := &mockTaskRepo{}
	s := newTestSyncer(tasks, &mockIdentityRepo{}, &mockItemRepo{}, cache.NewMemoryStore())

	task := &model.Task{ID: "t1", Type: model.TaskType("mystery")}
	s.Process(context.Background(), task)

	if len(tasks.done) != 1 {
		t.Errorf("未知の種別は破棄（done扱い）されるべき: done = %v", tasks.done)
	}
}

func TestRunOnceProcessesLeasedBatch(t *testing.T) {
	identities := &mockIdentityRepo{identities: map[string]*model.Identity{
		"u1": {ID: "u1", Name: "田中太郎"},
		"u2": {ID: "u2", Name: "佐藤花子"},
	}}
	tasks := &mockTaskRepo{leased: []*model.Task{
		{ID: "t1", Type: model.TaskIdentitySync, Payload: json.RawMessage(`{"user_id":"u1"}`)},
		{ID: "t2", Type: model.TaskIdentitySync, Payload: json.RawMessage(`{"user_id":"u2"}`)},
	}}
	store := cache.NewMemoryStore()
	s := newTestSyncer(tasks, identities, &mockItemRepo{}, store)

	if err := s.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(tasks.done) != 2 {
		t.Errorf("done = %v, want 2件", tasks.done)
	}
	if _, ok := store.Get(context.Background(), cache.IdentityKey("u2")); !ok {
		t.Error("u2のキャッシュが更新されていません")
	}
}
