package model

import (
	"encoding/json"
	"time"
)

// TaskType は遅延タスクの種別を表す。
type TaskType string

const (
	// TaskIdentitySync はIdentityの作成・更新後にキャッシュを更新するタスク。
	TaskIdentitySync TaskType = "identity.sync"
	// TaskIdentityDelete はIdentityの削除後にキャッシュエントリを削除するタスク。
	TaskIdentityDelete TaskType = "identity.delete"
	// TaskSnapshotRepair は古い埋め込みSnapshotを丸ごと書き直すタスク。
	TaskSnapshotRepair TaskType = "snapshot.repair"
)

// TaskStatus は遅延タスクの処理状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は実行待ちの状態。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusRunning はワーカーがリース中の状態。
	TaskStatusRunning TaskStatus = "running"
	// TaskStatusDone は処理が完了した状態。
	TaskStatusDone TaskStatus = "done"
	// TaskStatusFailed は最大試行回数を超えて失敗した状態。
	TaskStatusFailed TaskStatus = "failed"
)

// Task は遅延タスクキューの1エントリを表す。
// 配送保証はat-least-onceで順序保証は無いため、各タスクの処理は冪等でなければならない。
type Task struct {
	ID            string
	Type          TaskType
	Payload       json.RawMessage
	DedupKey      string
	Status        TaskStatus
	Attempts      int
	LastError     string
	NextAttemptAt time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IdentityTaskPayload はidentity.sync / identity.deleteタスクのペイロード。
type IdentityTaskPayload struct {
	UserID string `json:"user_id"`
}

// SnapshotRepairPayload はsnapshot.repairタスクのペイロード。
// 対象の作業アイテムIDのみを運び、ワーカーが現在のIdentityを再取得して
// 丸ごと上書きすることで順序逆転に対して安全になる。
type SnapshotRepairPayload struct {
	ItemID string `json:"item_id"`
}
