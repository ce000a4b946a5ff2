package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/taskman/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, email_confirmed, confirmation_token, confirmation_sent_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.PasswordHash, user.EmailConfirmed,
		nullString(user.ConfirmationToken), user.ConfirmationSentAt,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, email_confirmed, confirmation_token, confirmation_sent_at, created_at, updated_at
		 FROM users WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx,
		`SELECT id, email, password_hash, email_confirmed, confirmation_token, confirmation_sent_at, created_at, updated_at
		 FROM users WHERE email = $1`, email)
}

// ConfirmByToken は確認トークンに一致する未確認ユーザーを確認済みに更新する。
// sentAfterより前に発行されたトークンは期限切れとして扱う。
// 該当ユーザーがいない場合はnilを返す。
func (r *PostgresUserRepo) ConfirmByToken(ctx context.Context, token string, sentAfter time.Time) (*model.User, error) {
	if token == "" {
		return nil, nil
	}

	user := &model.User{}
	var confirmationToken sql.NullString
	var confirmationSentAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET email_confirmed = TRUE, confirmation_token = NULL, updated_at = now()
		 WHERE confirmation_token = $1
		   AND email_confirmed = FALSE
		   AND confirmation_sent_at >= $2
		 RETURNING id, email, password_hash, email_confirmed, confirmation_token, confirmation_sent_at, created_at, updated_at`,
		token, sentAfter,
	).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.EmailConfirmed,
		&confirmationToken, &confirmationSentAt,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to confirm user by token: %w", err)
	}

	user.ConfirmationToken = confirmationToken.String
	if confirmationSentAt.Valid {
		user.ConfirmationSentAt = &confirmationSentAt.Time
	}

	return user, nil
}

// findOne は1件のユーザーを取得する共通処理。
func (r *PostgresUserRepo) findOne(ctx context.Context, query string, arg any) (*model.User, error) {
	user := &model.User{}
	var confirmationToken sql.NullString
	var confirmationSentAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.EmailConfirmed,
		&confirmationToken, &confirmationSentAt,
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.ConfirmationToken = confirmationToken.String
	if confirmationSentAt.Valid {
		user.ConfirmationSentAt = &confirmationSentAt.Time
	}

	return user, nil
}

// nullString は空文字列をNULLに変換する。
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
