package auth

import (
	"context"
	"log/slog"
)

// ConfirmationMailer は確認メール送信のインターフェース。
// メール配送基盤は環境ごとに異なるため、サービス層からは
// この最小インターフェースのみに依存する。
type ConfirmationMailer interface {
	// SendConfirmation は確認URLを含むメールをemail宛に送信する。
	SendConfirmation(ctx context.Context, email, confirmURL string) error
}

// LogMailer は確認URLをログに出力するConfirmationMailerの実装。
// 開発環境およびメール配送基盤が未接続の環境で使用する。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

// SendConfirmation は確認URLをログに出力する。
func (m *LogMailer) SendConfirmation(_ context.Context, email, confirmURL string) error {
	m.logger.Info("confirmation mail dispatched",
		slog.String("email", email),
		slog.String("confirm_url", confirmURL),
	)
	return nil
}

// compile-time interface check
var _ ConfirmationMailer = (*LogMailer)(nil)
