// Package cleanup はセッションと未確認アカウントの自動削除ジョブを提供する。
// 期限切れセッションと、確認メール送信後に放置された未確認ユーザーを
// 定期バッチで削除する。関連するセッション・タスクはCASCADE削除で処理される。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger

	// UnconfirmedRetentionDays は未確認ユーザーの保持日数（デフォルト: 7）。
	// 確認トークンのTTLより十分長く取り、再サインアップを妨げないようにする。
	UnconfirmedRetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                       db,
		logger:                   logger,
		UnconfirmedRetentionDays: 7,
	}
}

// Run は期限切れセッションと放置された未確認ユーザーを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.deleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	staleUsers, err := j.deleteStaleUnconfirmedUsers(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", expiredSessions),
		slog.Int64("deleted_unconfirmed_users", staleUsers),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteExpiredSessions は有効期限を過ぎたセッションを削除する。
func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	return result.RowsAffected()
}

// deleteStaleUnconfirmedUsers は確認メール送信後、保持期間を超過しても
// 未確認のままのユーザーを削除する。
func (j *CleanupJob) deleteStaleUnconfirmedUsers(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.UnconfirmedRetentionDays)

	query := `DELETE FROM users
		WHERE email_confirmed = FALSE
		  AND confirmation_sent_at < now() - $1::interval`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("未確認ユーザーの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.UnconfirmedRetentionDays),
		)
		return 0, fmt.Errorf("未確認ユーザーの削除に失敗: %w", err)
	}

	return result.RowsAffected()
}
