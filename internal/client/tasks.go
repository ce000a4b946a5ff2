package client

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// dueDateLayout は期日のワイヤーフォーマット。
const dueDateLayout = "2006-01-02"

// Task はユーザーが所有するタスクのスナップショットを表す。
type Task struct {
	ID          string
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskFields はタスク作成の入力フィールド。
type TaskFields struct {
	Title       string
	Description string
	Status      string
	Priority    string
	DueDate     time.Time
}

// TaskPatch はタスクの部分更新フィールド。
// nilフィールドは変更されず、既存の値を維持する。
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *time.Time
}

// taskPayload はタスクのワイヤーフォーマット。
type taskPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	DueDate     string `json:"due_date"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// TaskRepository はタスクのCRUD操作を提供するデータアクセスファサード。
//
// すべての操作は現在のIdentityが所有するタスクのみを対象とする。
// 所有権の強制はバックエンド側で行われ、クライアント側の認証チェックは
// 早期失敗のための補助にすぎない。
// キャッシュ・リトライ・バッチングは行わず、各操作は1往復で完結する。
type TaskRepository struct {
	client   *Client
	sessions *SessionManager
}

// NewTaskRepository はTaskRepositoryを生成する。
func NewTaskRepository(client *Client, sessions *SessionManager) *TaskRepository {
	return &TaskRepository{
		client:   client,
		sessions: sessions,
	}
}

// Create はタスクを作成する。
// 作成されたタスクには現在のIdentityが所有者として刻印される。
// 未認証の場合はネットワーク呼び出しを行わずErrNotAuthenticatedを返す。
func (r *TaskRepository) Create(ctx context.Context, fields TaskFields) (*Task, error) {
	if !r.sessions.Current().Authenticated() {
		return nil, ErrNotAuthenticated
	}

	req := map[string]string{
		"title":       fields.Title,
		"description": fields.Description,
		"status":      fields.Status,
		"priority":    fields.Priority,
		"due_date":    fields.DueDate.Format(dueDateLayout),
	}

	var payload taskPayload
	if err := r.client.doJSON(ctx, http.MethodPost, "/api/tasks", req, &payload); err != nil {
		return nil, err
	}

	return toTask(payload)
}

// List は現在のIdentityが所有するタスク一覧を期日昇順で返す。
// 期日が同じタスク同士の順序は1回の呼び出し内では安定だが、
// 呼び出し間での順序は保証されない。
// 未認証の場合はネットワーク呼び出しを行わずErrNotAuthenticatedを返す。
func (r *TaskRepository) List(ctx context.Context) ([]*Task, error) {
	if !r.sessions.Current().Authenticated() {
		return nil, ErrNotAuthenticated
	}

	var response struct {
		Tasks []taskPayload `json:"tasks"`
	}
	if err := r.client.doJSON(ctx, http.MethodGet, "/api/tasks", nil, &response); err != nil {
		return nil, err
	}

	tasks := make([]*Task, 0, len(response.Tasks))
	for _, payload := range response.Tasks {
		task, err := toTask(payload)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// Update はタスクを部分更新する。
// patchのnilフィールドは変更されない（全置換ではない）。
// 他ユーザー所有のタスクと不存在のタスクは区別されず、
// どちらもRepositoryErrorとして返る。
// 未認証の場合はネットワーク呼び出しを行わずErrNotAuthenticatedを返す。
func (r *TaskRepository) Update(ctx context.Context, id string, patch TaskPatch) (*Task, error) {
	if !r.sessions.Current().Authenticated() {
		return nil, ErrNotAuthenticated
	}

	req := make(map[string]string)
	if patch.Title != nil {
		req["title"] = *patch.Title
	}
	if patch.Description != nil {
		req["description"] = *patch.Description
	}
	if patch.Status != nil {
		req["status"] = *patch.Status
	}
	if patch.Priority != nil {
		req["priority"] = *patch.Priority
	}
	if patch.DueDate != nil {
		req["due_date"] = patch.DueDate.Format(dueDateLayout)
	}

	var payload taskPayload
	path := fmt.Sprintf("/api/tasks/%s", id)
	if err := r.client.doJSON(ctx, http.MethodPatch, path, req, &payload); err != nil {
		return nil, err
	}

	return toTask(payload)
}

// Delete はタスクを削除する。
// 他ユーザー所有のタスクと不存在のタスクは区別されず、
// どちらもRepositoryErrorとして返る。
// 未認証の場合はネットワーク呼び出しを行わずErrNotAuthenticatedを返す。
func (r *TaskRepository) Delete(ctx context.Context, id string) error {
	if !r.sessions.Current().Authenticated() {
		return ErrNotAuthenticated
	}

	path := fmt.Sprintf("/api/tasks/%s", id)
	return r.client.doJSON(ctx, http.MethodDelete, path, nil, nil)
}

// toTask はワイヤーフォーマットからTaskに変換する。
func toTask(payload taskPayload) (*Task, error) {
	dueDate, err := time.Parse(dueDateLayout, payload.DueDate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse due_date %q: %w", payload.DueDate, err)
	}

	createdAt, err := time.Parse(time.RFC3339, payload.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", payload.CreatedAt, err)
	}

	updatedAt, err := time.Parse(time.RFC3339, payload.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w", payload.UpdatedAt, err)
	}

	return &Task{
		ID:          payload.ID,
		Title:       payload.Title,
		Description: payload.Description,
		Status:      payload.Status,
		Priority:    payload.Priority,
		DueDate:     dueDate,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
