package resolver

import "github.com/hitoshi/taskman/internal/model"

// referenceFields は作業アイテム種別ごとのidentity参照フィールドの静的宣言。
// 参照フィールドと埋め込みSnapshotフィールドは同じ名前で対応する。
// 実行時にドキュメントをリフレクションで探索することはせず、
// ここに宣言されたフィールドのみを解決対象とする。
var referenceFields = map[model.WorkItemType][]string{
	model.WorkItemTask:   {"assignee", "reviewer", "author"},
	model.WorkItemSprint: {"owner", "creator"},
}

// ReferenceFields は指定種別の参照フィールド一覧を返す。未知の種別はnil。
func ReferenceFields(t model.WorkItemType) []string {
	return referenceFields[t]
}

// HasReferenceField は指定フィールドが種別の参照フィールドとして宣言されているかを返す。
func HasReferenceField(t model.WorkItemType, field string) bool {
	for _, f := range referenceFields[t] {
		if f == field {
			return true
		}
	}
	return false
}
