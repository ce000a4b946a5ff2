package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresTaskRepo はPostgreSQLを使用したタスクリポジトリ。
// 全クエリがuser_idでスコープされ、他ユーザーのタスクは
// 読めず、書けず、存在確認もできない。
type PostgresTaskRepo struct {
	db *sql.DB
}

// NewPostgresTaskRepo はPostgresTaskRepoを生成する。
func NewPostgresTaskRepo(db *sql.DB) *PostgresTaskRepo {
	return &PostgresTaskRepo{db: db}
}

// Create はタスクを作成する。UserIDは呼び出し側で刻印済みであること。
func (r *PostgresTaskRepo) Create(ctx context.Context, task *model.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, user_id, title, description, status, priority, due_date, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		task.ID, task.UserID, task.Title, task.Description,
		string(task.Status), string(task.Priority), task.DueDate,
		task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのタスク一覧をdue_date昇順で返す。
// 同一期日内の順序はORDER BY句で指定しないため、呼び出し間で安定とは限らない。
func (r *PostgresTaskRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Task, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, title, description, status, priority, due_date, created_at, updated_at
		 FROM tasks
		 WHERE user_id = $1
		 ORDER BY due_date ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*model.Task{}
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}

	return tasks, nil
}

// UpdateByIDAndUser は指定ユーザーが所有するタスクを部分更新する。
// patchのnilフィールドは変更しない。SET句はpatchに含まれるフィールドのみで
// 動的に構築され、user_idがSET句に含まれることはない。
// 不存在と他ユーザー所有は区別せず、どちらもnilを返す。
func (r *PostgresTaskRepo) UpdateByIDAndUser(ctx context.Context, id, userID string, patch *model.TaskPatch) (*model.Task, error) {
	sets := []string{"updated_at = now()"}
	args := []any{id, userID}
	next := 3

	appendSet := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, next))
		args = append(args, value)
		next++
	}

	if patch.Title != nil {
		appendSet("title", *patch.Title)
	}
	if patch.Description != nil {
		appendSet("description", *patch.Description)
	}
	if patch.Status != nil {
		appendSet("status", string(*patch.Status))
	}
	if patch.Priority != nil {
		appendSet("priority", string(*patch.Priority))
	}
	if patch.DueDate != nil {
		appendSet("due_date", *patch.DueDate)
	}

	query := fmt.Sprintf(
		`UPDATE tasks SET %s
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, title, description, status, priority, due_date, created_at, updated_at`,
		strings.Join(sets, ", "),
	)

	task, err := scanTask(r.db.QueryRowContext(ctx, query, args...))
	if err == errNoTask {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return task, nil
}

// DeleteByIDAndUser は指定ユーザーが所有するタスクを削除する。
// 削除された場合はtrueを返す。不存在と他ユーザー所有はどちらもfalse。
func (r *PostgresTaskRepo) DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete task: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// errNoTask はスキャン対象の行が存在しなかったことを示す内部エラー。
var errNoTask = sql.ErrNoRows

// rowScanner は*sql.Rowと*sql.Rowsの共通スキャンインターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTask は1行をmodel.Taskにスキャンする。
func scanTask(row rowScanner) (*model.Task, error) {
	task := &model.Task{}
	var status, priority string

	err := row.Scan(
		&task.ID, &task.UserID, &task.Title, &task.Description,
		&status, &priority, &task.DueDate,
		&task.CreatedAt, &task.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errNoTask
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}

	task.Status = model.TaskStatus(status)
	task.Priority = model.TaskPriority(priority)

	return task, nil
}

// compile-time interface check
var _ TaskRepository = (*PostgresTaskRepo)(nil)
