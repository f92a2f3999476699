package model

import "time"

// WorkItemType は作業アイテムの種別を表す。
type WorkItemType string

const (
	// WorkItemTask はタスクを表す。
	WorkItemTask WorkItemType = "task"
	// WorkItemSprint はスプリントを表す。
	WorkItemSprint WorkItemType = "sprint"
)

// Valid は既知の作業アイテム種別かどうかを返す。
func (t WorkItemType) Valid() bool {
	return t == WorkItemTask || t == WorkItemSprint
}

// Snapshot はIdentityの表示属性を作業アイテムに埋め込んだ非正規化コピー。
// 常に丸ごと上書きされ、フィールド単位のパッチは行わない。
// 鮮度判定に信頼できるフィールドはSyncedAtのみ。
type Snapshot struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	Role      string    `json:"role,omitempty"`
	SyncedAt  time.Time `json:"synced_at"`
}

// Fresh はSnapshotがTTL内（FRESH状態）かどうかを返す。
// FRESH→STALEの遷移は時間経過による読み取り時の計算のみで、
// 明示的な遷移イベントは存在しない。nilレシーバはSTALE扱い。
func (s *Snapshot) Fresh(now time.Time, ttl time.Duration) bool {
	if s == nil {
		return false
	}
	return now.Sub(s.SyncedAt) < ttl
}

// SnapshotFromIdentity は正準レコードから新しいSnapshotを生成する。
func SnapshotFromIdentity(identity *Identity, syncedAt time.Time) *Snapshot {
	return &Snapshot{
		UserID:    identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
		Role:      identity.Role,
		SyncedAt:  syncedAt,
	}
}

// WorkItem はドキュメントストアに保存されるタスク・スプリント等の作業アイテム。
// Refsはidentity参照フィールド名からユーザーIDへのマップで、
// 種別ごとに許可されるフィールド名は静的に宣言される（resolverパッケージ参照）。
// SnapshotsはRefsと同じフィールド名をキーとする埋め込みSnapshot。
type WorkItem struct {
	ID          string                  `json:"id"`
	Type        WorkItemType            `json:"type"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Status      string                  `json:"status,omitempty"`
	Refs        map[string]string       `json:"refs,omitempty"`
	Snapshots   map[string]*Snapshot    `json:"snapshots,omitempty"`
	Resolved    map[string]IdentityDTO  `json:"resolved,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
	UpdatedAt   time.Time               `json:"updated_at"`
}

// Ref は指定フィールドの参照先ユーザーIDを返す。参照が無い場合はok=false。
func (w *WorkItem) Ref(field string) (string, bool) {
	id, ok := w.Refs[field]
	return id, ok
}

// Snapshot は指定フィールドの埋め込みSnapshotを返す。無い場合はnil。
func (w *WorkItem) Snapshot(field string) *Snapshot {
	if w.Snapshots == nil {
		return nil
	}
	return w.Snapshots[field]
}
