package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/taskman/internal/model"
)

// leaseTimeout はrunningタスクを放棄されたとみなして再リースするまでの時間。
// ワーカーのクラッシュ時もat-least-once配送を保つための回収窓。
const leaseTimeout = 5 * time.Minute

// PostgresTaskRepo はPostgreSQLを使用した遅延タスクキュー。
// FOR UPDATE SKIP LOCKEDによるリースで並行ワーカー間の競合を避ける。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Enqueue はタスクを投入する。同じdedup_keyのpendingタスクが存在する場合は
// ON CONFLICT DO NOTHINGで重複を排除する。
func (r *PostgresTaskRepo) Enqueue(ctx context.Context, taskType model.TaskType, payload any, dedupKey string) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode task payload: %w", err)
	}

	now := time.Now()
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO sync_tasks (id, task_type, payload, dedup_key, status, attempts, next_attempt_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 'pending', 0, $5, $5, $5)
		 ON CONFLICT (dedup_key) WHERE status = 'pending' DO NOTHING`,
		uuid.NewString(), taskType, data, dedupKey, now,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// LeaseBatch は実行可能なタスクを最大limit件リースする。
// pendingで実行時刻に達したタスクに加え、リース期限切れのrunningタスクも回収する。
func (r *PostgresTaskRepo) LeaseBatch(ctx context.Context, limit int) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`UPDATE sync_tasks
		 SET status = 'running', attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM sync_tasks
		   WHERE (status = 'pending' AND next_attempt_at <= now())
		      OR (status = 'running' AND updated_at < now() - $2::interval)
		   ORDER BY created_at
		   LIMIT $1
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, task_type, payload, dedup_key, status, attempts, last_error, next_attempt_at, created_at, updated_at`,
		limit, fmt.Sprintf("%d seconds", int(leaseTimeout.Seconds())),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to lease tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*model.Task
	for rows.Next() {
		task := &model.Task{}
		if err := rows.Scan(&task.ID, &task.Type, &task.Payload, &task.DedupKey,
			&task.Status, &task.Attempts, &task.LastError, &task.NextAttemptAt,
			&task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// MarkDone はタスクを完了状態にする。
func (r *PostgresTaskRepo) MarkDone(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_tasks SET status = 'done', updated_at = now() WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task done: %w", err)
	}
	return nil
}

// Reschedule はタスクを再試行待ちに戻す。
func (r *PostgresTaskRepo) Reschedule(ctx context.Context, id string, nextAttemptAt time.Time, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_tasks
		 SET status = 'pending', next_attempt_at = $2, last_error = $3, updated_at = now()
		 WHERE id = $1`,
		id, nextAttemptAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to reschedule task: %w", err)
	}
	return nil
}

// MarkFailed はタスクを恒久失敗状態にする。
func (r *PostgresTaskRepo) MarkFailed(ctx context.Context, id string, lastError string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE sync_tasks SET status = 'failed', last_error = $2, updated_at = now() WHERE id = $1`,
		id, lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark task failed: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
