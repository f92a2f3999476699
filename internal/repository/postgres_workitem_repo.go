package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresWorkItemRepo はPostgreSQLを使用した作業アイテムリポジトリ。
// 参照フィールドと埋め込みSnapshotはJSONBカラムに保存する。
type PostgresWorkItemRepo struct {
	db *sql.DB
}

// NewPostgresWorkItemRepo はPostgresWorkItemRepoを生成する。
func NewPostgresWorkItemRepo(db *sql.DB) *PostgresWorkItemRepo {
	return &PostgresWorkItemRepo{db: db}
}

// FindByID は指定IDの作業アイテムを取得する。見つからない場合はnilを返す。
func (r *PostgresWorkItemRepo) FindByID(ctx context.Context, id string) (*model.WorkItem, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, item_type, title, description, status, refs, snapshots, created_at, updated_at
		 FROM work_items WHERE id = $1`,
		id,
	)

	item, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find work item by ID: %w", err)
	}
	return item, nil
}

// List は作業アイテム一覧を作成日時降順で取得する。
func (r *PostgresWorkItemRepo) List(ctx context.Context, limit, offset int) ([]*model.WorkItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, item_type, title, description, status, refs, snapshots, created_at, updated_at
		 FROM work_items ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []*model.WorkItem
	for rows.Next() {
		item, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate work items: %w", err)
	}

	return items, nil
}

// Create は新規作業アイテムを作成する。
func (r *PostgresWorkItemRepo) Create(ctx context.Context, item *model.WorkItem) error {
	refs, err := json.Marshal(item.Refs)
	if err != nil {
		return fmt.Errorf("failed to encode refs: %w", err)
	}
	snapshots, err := json.Marshal(item.Snapshots)
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO work_items (id, item_type, title, description, status, refs, snapshots, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		item.ID, item.Type, item.Title, item.Description, item.Status,
		refs, snapshots, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert work item: %w", err)
	}
	return nil
}

// UpdateSnapshot は指定フィールドの埋め込みSnapshotを丸ごと置き換える。
// jsonb_setでフィールドキー単位に値全体を差し替え、部分更新は行わない。
func (r *PostgresWorkItemRepo) UpdateSnapshot(ctx context.Context, itemID, field string, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE work_items
		 SET snapshots = jsonb_set(COALESCE(snapshots, '{}'::jsonb), ARRAY[$2], $3::jsonb, true),
		     updated_at = now()
		 WHERE id = $1`,
		itemID, field, data,
	)
	if err != nil {
		return fmt.Errorf("failed to update snapshot: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("work item not found: %s", itemID)
	}
	return nil
}

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanWorkItem は1行を作業アイテムに変換する。JSONBカラムをデコードする。
func scanWorkItem(row rowScanner) (*model.WorkItem, error) {
	item := &model.WorkItem{}
	var refs, snapshots []byte

	if err := row.Scan(&item.ID, &item.Type, &item.Title, &item.Description,
		&item.Status, &refs, &snapshots, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}

	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &item.Refs); err != nil {
			return nil, fmt.Errorf("failed to decode refs: %w", err)
		}
	}
	if len(snapshots) > 0 {
		if err := json.Unmarshal(snapshots, &item.Snapshots); err != nil {
			return nil, fmt.Errorf("failed to decode snapshots: %w", err)
		}
	}
	return item, nil
}

// compile-time interface check
var _ WorkItemRepository = (*PostgresWorkItemRepo)(nil)
