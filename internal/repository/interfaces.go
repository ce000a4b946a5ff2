// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// ConfirmByToken は確認トークンに一致する未確認ユーザーを確認済みに更新する。
	// sentAfterより前に発行されたトークンは期限切れとして扱う。
	// 該当ユーザーがいない場合はnilを返す。
	ConfirmByToken(ctx context.Context, token string, sentAfter time.Time) (*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。存在しないIDでもエラーにならない。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// TaskRepository はタスクデータの永続化インターフェース。
// すべての読み書きは呼び出しユーザーのuser_idでスコープされる。
// 所有権の強制はこの層のSQL（WHERE user_id = $N）とスキーマの
// 外部キー制約で行い、クライアントの事前チェックには依存しない。
type TaskRepository interface {
	// Create はタスクを作成する。UserIDは呼び出し側で刻印済みであること。
	Create(ctx context.Context, task *model.Task) error

	// ListByUserID はユーザーのタスク一覧をdue_date昇順で返す。
	// 同一期日内の順序はバックエンド既定で、呼び出し間で安定とは限らない。
	ListByUserID(ctx context.Context, userID string) ([]*model.Task, error)

	// UpdateByIDAndUser は指定ユーザーが所有するタスクを部分更新する。
	// patchのnilフィールドは変更しない。
	// 不存在と他ユーザー所有は区別せず、どちらもnilを返す。
	UpdateByIDAndUser(ctx context.Context, id, userID string, patch *model.TaskPatch) (*model.Task, error)

	// DeleteByIDAndUser は指定ユーザーが所有するタスクを削除する。
	// 削除された場合はtrueを返す。不存在と他ユーザー所有はどちらもfalse。
	DeleteByIDAndUser(ctx context.Context, id, userID string) (bool, error)
}
