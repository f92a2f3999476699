// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: validation, item, user, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidReference    = "INVALID_REFERENCE"
	ErrCodeItemNotFound        = "ITEM_NOT_FOUND"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeInvalidWorkItemType = "INVALID_WORK_ITEM_TYPE"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
)

// NewInvalidReferenceError は不正なidentity参照エラーを生成する。
// 空・空白のみの参照IDはストアアクセス前に拒否され、
// 解決エンジンが呼び出し元に返す唯一のハードエラーとなる。
func NewInvalidReferenceError(itemID, field string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidReference,
		Message:  fmt.Sprintf("不正なidentity参照です: item=%s field=%s", itemID, field),
		Category: "validation",
		Action:   "参照フィールドに空でないユーザーIDを指定してください。",
	}
}

// NewItemNotFoundError は作業アイテム未検出エラーを生成する。
func NewItemNotFoundError(itemID string) *APIError {
	return &APIError{
		Code:     ErrCodeItemNotFound,
		Message:  fmt.Sprintf("指定された作業アイテムが見つかりません: %s", itemID),
		Category: "item",
		Action:   "作業アイテムIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザー未検出エラーを生成する。
func NewUserNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %s", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewInvalidWorkItemTypeError は未知の作業アイテム種別エラーを生成する。
func NewInvalidWorkItemTypeError(itemType string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidWorkItemType,
		Message:  fmt.Sprintf("未知の作業アイテム種別です: %s", itemType),
		Category: "validation",
		Action:   "種別には task、sprint のいずれかを指定してください。",
	}
}

// NewInvalidRequestError はリクエスト不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}
