package client

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated は未認証状態での操作を表す。
// ネットワーク呼び出しの前にローカルで検出される。
var ErrNotAuthenticated = errors.New("not authenticated")

// ErrEmailNotConfirmed はメール未確認によるサインイン拒否を表す。
// UIが確認メール再送の案内を出すため、AuthRejectedErrorとは区別する。
var ErrEmailNotConfirmed = errors.New("email not confirmed")

// AuthRejectedError は認証サービスによる拒否を表す。
// バックエンドが伝えた理由をそのまま保持する。呼び出し側は
// Reasonをパターンマッチせず、エラー型のみで分岐すること。
type AuthRejectedError struct {
	Reason string
}

// Error はerrorインターフェースを実装する。
func (e *AuthRejectedError) Error() string {
	return fmt.Sprintf("auth rejected: %s", e.Reason)
}

// RepositoryError はデータ操作におけるバックエンド側の失敗を表す。
// 所有権違反と不存在はバックエンドが意図的に区別しないため、
// どちらも同じRepositoryErrorとして表面化する。
type RepositoryError struct {
	Code    string // バックエンドのエラーコード（不明な場合は空）
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *RepositoryError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("repository error [%s]: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("repository error: %s", e.Message)
}

// AuthServiceError はサインアウト等の認証サービス呼び出し自体の
// 失敗（トランスポートエラーなど）を表す。
// 呼び出し側はこのエラーを受けてもローカル状態はサインアウト済みとして扱う。
type AuthServiceError struct {
	Err error
}

// Error はerrorインターフェースを実装する。
func (e *AuthServiceError) Error() string {
	return fmt.Sprintf("auth service error: %v", e.Err)
}

// Unwrap はラップされたエラーを返す。
func (e *AuthServiceError) Unwrap() error {
	return e.Err
}
