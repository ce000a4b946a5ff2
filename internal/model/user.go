// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// メールアドレスとパスワードで認証し、メール確認が完了するまでサインインできない。
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	EmailConfirmed     bool
	ConfirmationToken  string
	ConfirmationSentAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
