// Package model はドメインモデルを定義する。
package model

import "time"

// Identity はリレーショナルストアが所有する正準ユーザーレコードを表す。
// 作成・更新・削除は通常のアカウント管理フローで行われ、
// 本エンジンは読み取りと表示用の複製（Snapshot）のみを扱う。
type Identity struct {
	ID        string
	Name      string
	Email     string
	AvatarURL string
	Role      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UnknownUserName は解決不能な参照に対して表示するプレースホルダ名。
const UnknownUserName = "Unknown User"

// IdentityDTO は表示用に解決済みのユーザー情報を表す。
// Resolvedがfalseの場合はセンチネル（解決不能な参照のプレースホルダ）であり、
// Name以外のフィールドは信頼できない。
type IdentityDTO struct {
	UserID    string `json:"user_id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
	Resolved  bool   `json:"resolved"`
}

// SentinelDTO は解決不能なidentity参照に対するセンチネルDTOを返す。
// 削除済み・存在しないユーザーへの参照でも描画が壊れないことを保証する。
func SentinelDTO(userID string) IdentityDTO {
	return IdentityDTO{
		UserID:   userID,
		Name:     UnknownUserName,
		Resolved: false,
	}
}

// DTOFromIdentity は正準レコードから表示用DTOを生成する。
func DTOFromIdentity(identity *Identity) IdentityDTO {
	return IdentityDTO{
		UserID:    identity.ID,
		Name:      identity.Name,
		Email:     identity.Email,
		AvatarURL: identity.AvatarURL,
		Role:      identity.Role,
		Resolved:  true,
	}
}

// DTOFromSnapshot は埋め込みSnapshotから表示用DTOを生成する。
func DTOFromSnapshot(snap *Snapshot) IdentityDTO {
	return IdentityDTO{
		UserID:    snap.UserID,
		Name:      snap.Name,
		Email:     snap.Email,
		AvatarURL: snap.AvatarURL,
		Role:      snap.Role,
		Resolved:  true,
	}
}
