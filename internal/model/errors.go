// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, task, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeAuthRejected      = "AUTH_REJECTED"
	ErrCodeEmailNotConfirmed = "EMAIL_NOT_CONFIRMED"
	ErrCodeNotAuthenticated  = "NOT_AUTHENTICATED"
	ErrCodeTaskNotFound      = "TASK_NOT_FOUND"
	ErrCodeInvalidTitle      = "INVALID_TITLE"
	ErrCodeInvalidStatus     = "INVALID_STATUS"
	ErrCodeInvalidPriority   = "INVALID_PRIORITY"
	ErrCodeInvalidDueDate    = "INVALID_DUE_DATE"
	ErrCodeInvalidToken      = "INVALID_TOKEN"
	ErrCodeEmptyPatch        = "EMPTY_PATCH"
)

// NewAuthRejectedError は認証拒否エラーを生成する。
// 重複アカウント・ポリシー違反・資格情報不一致など、バックエンドが
// 伝えた理由をそのまま転送する。呼び出し側はメッセージを
// パターンマッチせず、コードのみで分岐すること。
func NewAuthRejectedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthRejected,
		Message:  reason,
		Category: "auth",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewEmailNotConfirmedError はメール未確認エラーを生成する。
// UIが確認メール再送の案内を出せるよう、専用コードで区別する。
func NewEmailNotConfirmedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotConfirmed,
		Message:  "メールアドレスの確認が完了していません。",
		Category: "auth",
		Action:   "受信した確認メールのリンクを開いてから、再度サインインしてください。",
	}
}

// NewNotAuthenticatedError は未認証エラーを生成する。
func NewNotAuthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthenticated,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "サインインしてください。",
	}
}

// NewTaskNotFoundError はタスク未検出エラーを生成する。
// 所有権違反と不存在は意図的に区別しない（存在の漏洩を防ぐため）。
func NewTaskNotFoundError(taskID string) *APIError {
	return &APIError{
		Code:     ErrCodeTaskNotFound,
		Message:  fmt.Sprintf("指定されたタスクが見つかりません: %s", taskID),
		Category: "task",
		Action:   "タスクIDを確認してください。",
	}
}

// NewInvalidTitleError はタイトル不正エラーを生成する。
func NewInvalidTitleError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidTitle,
		Message:  "タイトルが空です。",
		Category: "validation",
		Action:   "1文字以上のタイトルを入力してください。",
	}
}

// NewInvalidStatusError は無効なステータスエラーを生成する。
func NewInvalidStatusError(status string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidStatus,
		Message:  fmt.Sprintf("無効なステータスです: %s", status),
		Category: "validation",
		Action:   "ステータスには pending、completed のいずれかを指定してください。",
	}
}

// NewInvalidPriorityError は無効な優先度エラーを生成する。
func NewInvalidPriorityError(priority string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPriority,
		Message:  fmt.Sprintf("無効な優先度です: %s", priority),
		Category: "validation",
		Action:   "優先度には low、medium、high のいずれかを指定してください。",
	}
}

// NewInvalidDueDateError は無効な期日エラーを生成する。
func NewInvalidDueDateError(raw string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDueDate,
		Message:  fmt.Sprintf("無効な期日です: %s", raw),
		Category: "validation",
		Action:   "期日はYYYY-MM-DD形式で指定してください。",
	}
}

// NewInvalidTokenError は確認トークン不正エラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "確認トークンが無効か、有効期限が切れています。",
		Category: "auth",
		Action:   "サインアップをやり直して、新しい確認メールを受け取ってください。",
	}
}

// NewEmptyPatchError は更新フィールド未指定エラーを生成する。
func NewEmptyPatchError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyPatch,
		Message:  "更新するフィールドが指定されていません。",
		Category: "validation",
		Action:   "title、description、status、priority、due_dateのいずれかを指定してください。",
	}
}
