// Package auth はメール・パスワード認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/crypto"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge        int           // セッション有効期間（秒）
	PasswordMinLength    int           // パスワード最小長
	ConfirmationTokenTTL time.Duration // 確認トークンの有効期間
	BaseURL              string        // 確認URL構築用
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	mailer      ConfirmationMailer
	events      *Events
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	mailer ConfirmationMailer,
	events *Events,
	config ServiceConfig,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		mailer:      mailer,
		events:      events,
		config:      config,
	}
}

// SignUp はアカウント作成を受け付け、確認メールを送信する。
// セッションは発行しない（メール確認完了後にサインインする）。
// メール形式不正・パスワードポリシー違反・重複アカウントは
// model.APIError（AUTH_REJECTED）として返す。
func (s *Service) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(strings.ToLower(email))

	if _, err := mail.ParseAddress(email); err != nil {
		return model.NewAuthRejectedError("メールアドレスの形式が正しくありません。")
	}
	if len(password) < s.config.PasswordMinLength {
		return model.NewAuthRejectedError(
			fmt.Sprintf("パスワードは%d文字以上で入力してください。", s.config.PasswordMinLength))
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to find user by email: %w", err)
	}
	if existing != nil {
		return model.NewAuthRejectedError("このメールアドレスは既に登録されています。")
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	token, err := generateToken()
	if err != nil {
		return fmt.Errorf("failed to generate confirmation token: %w", err)
	}

	now := time.Now().UTC()
	user := &model.User{
		ID:                 uuid.New().String(),
		Email:              email,
		PasswordHash:       hash,
		EmailConfirmed:     false,
		ConfirmationToken:  token,
		ConfirmationSentAt: &now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	confirmURL := fmt.Sprintf("%s/auth/confirm?token=%s", s.config.BaseURL, token)
	if err := s.mailer.SendConfirmation(ctx, email, confirmURL); err != nil {
		return fmt.Errorf("failed to send confirmation mail: %w", err)
	}

	slog.Info("user signed up",
		slog.String("user_id", user.ID),
	)
	return nil
}

// ConfirmEmail は確認トークンを検証し、ユーザーを確認済みに更新する。
// トークンが無効または期限切れの場合はmodel.APIError（INVALID_TOKEN）を返す。
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	sentAfter := time.Now().UTC().Add(-s.config.ConfirmationTokenTTL)

	user, err := s.userRepo.ConfirmByToken(ctx, token, sentAfter)
	if err != nil {
		return fmt.Errorf("failed to confirm email: %w", err)
	}
	if user == nil {
		return model.NewInvalidTokenError()
	}

	slog.Info("email confirmed",
		slog.String("user_id", user.ID),
	)
	return nil
}

// SignIn は資格情報を検証し、セッションを発行する。
// 資格情報不一致はユーザーの存在有無を問わず同一のAUTH_REJECTEDを返す。
// メール未確認はEMAIL_NOT_CONFIRMEDとして区別する（UIの案内分岐のため）。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, *model.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewAuthRejectedError("メールアドレスまたはパスワードが正しくありません。")
	}

	if err := crypto.CheckPassword(user.PasswordHash, password); err != nil {
		return nil, nil, model.NewAuthRejectedError("メールアドレスまたはパスワードが正しくありません。")
	}

	if !user.EmailConfirmed {
		return nil, nil, model.NewEmailNotConfirmedError()
	}

	session, err := s.createSession(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.events.Publish(SessionEvent{
		Type:      SessionEventSignedIn,
		UserID:    user.ID,
		SessionID: session.ID,
	})

	slog.Info("user signed in",
		slog.String("user_id", user.ID),
	)
	return session, user, nil
}

// SignOut はセッションを破棄する。冪等であり、既に存在しない
// セッションIDや空のIDを渡してもエラーにならない。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if session != nil {
		s.events.Publish(SessionEvent{
			Type:      SessionEventSignedOut,
			UserID:    session.UserID,
			SessionID: session.ID,
		})
		slog.Info("user signed out", slog.String("user_id", session.UserID))
	}

	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
// セッションが存在しない・期限切れの場合はnilを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return user, nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateToken は暗号的に安全なランダムトークンを生成する。
// セッションIDと確認トークンの両方に使用する。
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
