package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresIdentityRepo はPostgreSQLを使用したIdentityリポジトリ。
type PostgresIdentityRepo struct {
	db *sql.DB
}

// NewPostgresIdentityRepo はPostgresIdentityRepoを生成する。
func NewPostgresIdentityRepo(db *sql.DB) *PostgresIdentityRepo {
	return &PostgresIdentityRepo{db: db}
}

// FindByID は指定IDのIdentityを取得する。見つからない場合はnilを返す。
func (r *PostgresIdentityRepo) FindByID(ctx context.Context, id string) (*model.Identity, error) {
	identity := &model.Identity{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, avatar_url, role, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&identity.ID, &identity.Name, &identity.Email, &identity.AvatarURL,
		&identity.Role, &identity.CreatedAt, &identity.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by ID: %w", err)
	}

	return identity, nil
}

// FindByIDs は複数IDのIdentityをANY($1)による1回のクエリで一括取得する。
// 存在しないIDは結果に含まれない。
func (r *PostgresIdentityRepo) FindByIDs(ctx context.Context, ids []string) ([]*model.Identity, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, avatar_url, role, created_at, updated_at
		 FROM users WHERE id = ANY($1)`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to find identities by IDs: %w", err)
	}
	defer rows.Close()

	var identities []*model.Identity
	for rows.Next() {
		identity := &model.Identity{}
		if err := rows.Scan(&identity.ID, &identity.Name, &identity.Email,
			&identity.AvatarURL, &identity.Role, &identity.CreatedAt, &identity.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate identities: %w", err)
	}

	return identities, nil
}

// Update はIdentityを更新する。対象が存在しない場合はエラーを返す。
func (r *PostgresIdentityRepo) Update(ctx context.Context, identity *model.Identity) error {
	identity.UpdatedAt = time.Now()

	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = $2, email = $3, avatar_url = $4, role = $5, updated_at = $6
		 WHERE id = $1`,
		identity.ID, identity.Name, identity.Email, identity.AvatarURL,
		identity.Role, identity.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update identity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("identity not found: %s", identity.ID)
	}
	return nil
}

// Delete は指定IDのIdentityを削除する。対象が存在しない場合はエラーを返す。
func (r *PostgresIdentityRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("identity not found: %s", id)
	}
	return nil
}

// compile-time interface check
var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
