// Package model はドメインモデルを定義する。
package model

import "time"

// TaskStatus はタスクの進行状態を表す。
type TaskStatus string

const (
	// TaskStatusPending は未完了のタスクを表す。
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusCompleted は完了済みのタスクを表す。
	TaskStatusCompleted TaskStatus = "completed"
)

// Valid はステータスが定義済みの値かどうかを返す。
func (s TaskStatus) Valid() bool {
	return s == TaskStatusPending || s == TaskStatusCompleted
}

// TaskPriority はタスクの優先度を表す。
type TaskPriority string

const (
	// TaskPriorityLow は低優先度を表す。
	TaskPriorityLow TaskPriority = "low"
	// TaskPriorityMedium は中優先度を表す。
	TaskPriorityMedium TaskPriority = "medium"
	// TaskPriorityHigh は高優先度を表す。
	TaskPriorityHigh TaskPriority = "high"
)

// Valid は優先度が定義済みの値かどうかを返す。
func (p TaskPriority) Valid() bool {
	return p == TaskPriorityLow || p == TaskPriorityMedium || p == TaskPriorityHigh
}

// Task はユーザーが所有するタスクを表す。
// UserIDは作成時に認証済みユーザーのIDが刻印され、以降変更されない。
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	Priority    TaskPriority
	DueDate     time.Time // 日付のみ有効（時刻は00:00 UTCに正規化される）
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TaskPatch はタスクの部分更新を表す。
// nilフィールドは変更せず、既存の値を維持する。
type TaskPatch struct {
	Title       *string
	Description *string
	Status      *TaskStatus
	Priority    *TaskPriority
	DueDate     *time.Time
}

// Empty は更新対象のフィールドが1つもないかどうかを返す。
func (p *TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil &&
		p.Priority == nil && p.DueDate == nil
}
