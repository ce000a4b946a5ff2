package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	createFn         func(ctx context.Context, user *model.User) error
	findByIDFn       func(ctx context.Context, id string) (*model.User, error)
	findByEmailFn    func(ctx context.Context, email string) (*model.User, error)
	confirmByTokenFn func(ctx context.Context, token string, sentAfter time.Time) (*model.User, error)
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	if m.createFn != nil {
		return m.createFn(ctx, user)
	}
	return nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockUserRepo) ConfirmByToken(ctx context.Context, token string, sentAfter time.Time) (*model.User, error) {
	if m.confirmByTokenFn != nil {
		return m.confirmByTokenFn(ctx, token, sentAfter)
	}
	return nil, nil
}

type mockSessionRepo struct {
	createFn         func(ctx context.Context, session *model.Session) error
	findByIDFn       func(ctx context.Context, id string) (*model.Session, error)
	deleteByIDFn     func(ctx context.Context, id string) error
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}

func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return nil
}

func (m *mockSessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

type mockMailer struct {
	sendFn func(ctx context.Context, email, confirmURL string) error
}

func (m *mockMailer) SendConfirmation(ctx context.Context, email, confirmURL string) error {
	if m.sendFn != nil {
		return m.sendFn(ctx, email, confirmURL)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)
var _ ConfirmationMailer = (*mockMailer)(nil)

func testServiceConfig() ServiceConfig {
	return ServiceConfig{
		SessionMaxAge:        86400,
		PasswordMinLength:    8,
		ConfirmationTokenTTL: 24 * time.Hour,
		BaseURL:              "http://localhost:8080",
	}
}

// --- SignUp ---

func TestSignUp_CreatesUnconfirmedUserAndSendsMail(t *testing.T) {
	ctx := context.Background()

	var createdUser *model.User
	var sentEmail, sentURL string

	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			createdUser = user
			return nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			t.Fatal("サインアップ時にセッションを作成してはならない")
			return nil
		},
	}
	mailer := &mockMailer{
		sendFn: func(ctx context.Context, email, confirmURL string) error {
			sentEmail = email
			sentURL = confirmURL
			return nil
		},
	}

	svc := NewService(userRepo, sessionRepo, mailer, NewEvents(), testServiceConfig())

	err := svc.SignUp(ctx, "User@Example.com", "password123")
	if err != nil {
		t.Fatalf("SignUp() がエラーを返した: %v", err)
	}

	if createdUser == nil {
		t.Fatal("ユーザーが作成されなかった")
	}
	if createdUser.Email != "user@example.com" {
		t.Errorf("Email = %q, want %q（小文字に正規化されるべき）", createdUser.Email, "user@example.com")
	}
	if createdUser.EmailConfirmed {
		t.Error("作成直後のユーザーは未確認であるべき")
	}
	if createdUser.ConfirmationToken == "" {
		t.Error("確認トークンが生成されていない")
	}
	if createdUser.PasswordHash == "password123" {
		t.Error("パスワードが平文のまま保存されている")
	}
	if sentEmail != "user@example.com" {
		t.Errorf("確認メールの宛先 = %q, want %q", sentEmail, "user@example.com")
	}
	if !strings.Contains(sentURL, "/auth/confirm?token=") {
		t.Errorf("確認URLの形式が不正: %q", sentURL)
	}
}

func TestSignUp_InvalidEmail_ReturnsAuthRejected(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	err := svc.SignUp(context.Background(), "not-an-email", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeAuthRejected {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeAuthRejected)
	}
}

func TestSignUp_ShortPassword_ReturnsAuthRejected(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	err := svc.SignUp(context.Background(), "user@example.com", "short")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeAuthRejected {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeAuthRejected)
	}
}

func TestSignUp_DuplicateEmail_ReturnsAuthRejected(t *testing.T) {
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return &model.User{ID: "existing-user", Email: email}, nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	err := svc.SignUp(context.Background(), "user@example.com", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeAuthRejected {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeAuthRejected)
	}
}

// --- SignIn ---

// confirmedUser はSignUp経由で正しいパスワードハッシュを持つ
// 確認済みユーザーを作る。
func confirmedUser(t *testing.T, email, password string) *model.User {
	t.Helper()

	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	signupSvc := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())
	if err := signupSvc.SignUp(context.Background(), email, password); err != nil {
		t.Fatalf("テストユーザーの作成に失敗: %v", err)
	}
	created.EmailConfirmed = true
	return created
}

func TestSignIn_Success_CreatesSessionAndPublishesEvent(t *testing.T) {
	ctx := context.Background()
	user := confirmedUser(t, "user@example.com", "password123")

	var createdSession *model.Session
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return user, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			createdSession = session
			return nil
		},
	}
	events := NewEvents()
	eventCh, cancel := events.Subscribe(user.ID)
	defer cancel()

	svc := NewService(userRepo, sessionRepo, &mockMailer{}, events, testServiceConfig())

	session, gotUser, err := svc.SignIn(ctx, "user@example.com", "password123")
	if err != nil {
		t.Fatalf("SignIn() がエラーを返した: %v", err)
	}
	if session == nil || createdSession == nil {
		t.Fatal("セッションが作成されなかった")
	}
	if session.UserID != user.ID {
		t.Errorf("session.UserID = %q, want %q", session.UserID, user.ID)
	}
	if gotUser.ID != user.ID {
		t.Errorf("user.ID = %q, want %q", gotUser.ID, user.ID)
	}

	select {
	case evt := <-eventCh:
		if evt.Type != SessionEventSignedIn {
			t.Errorf("イベント種別 = %q, want %q", evt.Type, SessionEventSignedIn)
		}
	case <-time.After(time.Second):
		t.Error("signed_inイベントが配信されなかった")
	}
}

func TestSignIn_UnknownUserAndWrongPassword_SameRejection(t *testing.T) {
	ctx := context.Background()
	user := confirmedUser(t, "user@example.com", "password123")

	// 存在しないユーザー
	svcUnknown := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())
	_, _, errUnknown := svcUnknown.SignIn(ctx, "nobody@example.com", "password123")

	// パスワード不一致
	userRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return user, nil
		},
	}
	svcWrongPw := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())
	_, _, errWrongPw := svcWrongPw.SignIn(ctx, "user@example.com", "wrong-password")

	var apiErrUnknown, apiErrWrongPw *model.APIError
	if !errors.As(errUnknown, &apiErrUnknown) || !errors.As(errWrongPw, &apiErrWrongPw) {
		t.Fatalf("どちらもAPIErrorが返るべき: %v / %v", errUnknown, errWrongPw)
	}

	// ユーザーの存在有無を漏らさないため、メッセージまで同一であること
	if apiErrUnknown.Code != model.ErrCodeAuthRejected || apiErrWrongPw.Code != model.ErrCodeAuthRejected {
		t.Errorf("どちらもAUTH_REJECTEDであるべき: %q / %q", apiErrUnknown.Code, apiErrWrongPw.Code)
	}
	if apiErrUnknown.Message != apiErrWrongPw.Message {
		t.Errorf("拒否メッセージが一致しない: %q / %q", apiErrUnknown.Message, apiErrWrongPw.Message)
	}
}

func TestSignIn_BeforeConfirmation_ReturnsEmailNotConfirmed(t *testing.T) {
	ctx := context.Background()

	// サインアップ直後（未確認）のユーザー
	var created *model.User
	userRepo := &mockUserRepo{
		createFn: func(ctx context.Context, user *model.User) error {
			created = user
			return nil
		},
	}
	signupSvc := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())
	if err := signupSvc.SignUp(ctx, "user@example.com", "password123"); err != nil {
		t.Fatalf("SignUp() がエラーを返した: %v", err)
	}

	signinRepo := &mockUserRepo{
		findByEmailFn: func(ctx context.Context, email string) (*model.User, error) {
			return created, nil
		},
	}
	sessionRepo := &mockSessionRepo{
		createFn: func(ctx context.Context, session *model.Session) error {
			t.Fatal("未確認ユーザーにセッションを発行してはならない")
			return nil
		},
	}
	svc := NewService(signinRepo, sessionRepo, &mockMailer{}, NewEvents(), testServiceConfig())

	_, _, err := svc.SignIn(ctx, "user@example.com", "password123")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeEmailNotConfirmed {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeEmailNotConfirmed)
	}
}

// --- ConfirmEmail ---

func TestConfirmEmail_InvalidToken_ReturnsInvalidToken(t *testing.T) {
	userRepo := &mockUserRepo{
		confirmByTokenFn: func(ctx context.Context, token string, sentAfter time.Time) (*model.User, error) {
			return nil, nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	err := svc.ConfirmEmail(context.Background(), "bogus-token")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorが返るべき: %v", err)
	}
	if apiErr.Code != model.ErrCodeInvalidToken {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeInvalidToken)
	}
}

func TestConfirmEmail_PassesTTLCutoff(t *testing.T) {
	var gotSentAfter time.Time
	userRepo := &mockUserRepo{
		confirmByTokenFn: func(ctx context.Context, token string, sentAfter time.Time) (*model.User, error) {
			gotSentAfter = sentAfter
			return &model.User{ID: "user-1"}, nil
		},
	}
	svc := NewService(userRepo, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	before := time.Now().UTC().Add(-24 * time.Hour)
	if err := svc.ConfirmEmail(context.Background(), "token"); err != nil {
		t.Fatalf("ConfirmEmail() がエラーを返した: %v", err)
	}
	after := time.Now().UTC().Add(-24 * time.Hour)

	if gotSentAfter.Before(before) || gotSentAfter.After(after) {
		t.Errorf("sentAfterがTTL（24h）前を指していない: %v", gotSentAfter)
	}
}

// --- SignOut ---

func TestSignOut_Idempotent(t *testing.T) {
	ctx := context.Background()

	deleteCalls := 0
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return nil, nil // 既に存在しない
		},
		deleteByIDFn: func(ctx context.Context, id string) error {
			deleteCalls++
			return nil
		},
	}
	svc := NewService(&mockUserRepo{}, sessionRepo, &mockMailer{}, NewEvents(), testServiceConfig())

	// 存在しないセッションIDでもエラーにならない
	if err := svc.SignOut(ctx, "already-gone"); err != nil {
		t.Fatalf("1回目の SignOut() がエラーを返した: %v", err)
	}
	if err := svc.SignOut(ctx, "already-gone"); err != nil {
		t.Fatalf("2回目の SignOut() がエラーを返した: %v", err)
	}

	// 空のセッションIDもエラーにならない
	if err := svc.SignOut(ctx, ""); err != nil {
		t.Fatalf("空ID の SignOut() がエラーを返した: %v", err)
	}
	if deleteCalls != 2 {
		t.Errorf("削除呼び出し回数 = %d, want 2（空IDはリポジトリに到達しない）", deleteCalls)
	}
}

func TestSignOut_PublishesSignedOutEvent(t *testing.T) {
	ctx := context.Background()

	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1"}, nil
		},
	}
	events := NewEvents()
	eventCh, cancel := events.Subscribe("user-1")
	defer cancel()

	svc := NewService(&mockUserRepo{}, sessionRepo, &mockMailer{}, events, testServiceConfig())

	if err := svc.SignOut(ctx, "session-1"); err != nil {
		t.Fatalf("SignOut() がエラーを返した: %v", err)
	}

	select {
	case evt := <-eventCh:
		if evt.Type != SessionEventSignedOut {
			t.Errorf("イベント種別 = %q, want %q", evt.Type, SessionEventSignedOut)
		}
	case <-time.After(time.Second):
		t.Error("signed_outイベントが配信されなかった")
	}
}

// --- GetCurrentUser ---

func TestGetCurrentUser_NoSession_ReturnsNil(t *testing.T) {
	svc := NewService(&mockUserRepo{}, &mockSessionRepo{}, &mockMailer{}, NewEvents(), testServiceConfig())

	user, err := svc.GetCurrentUser(context.Background(), "")
	if err != nil {
		t.Fatalf("GetCurrentUser() がエラーを返した: %v", err)
	}
	if user != nil {
		t.Error("セッションIDなしではnilを返すべき")
	}

	user, err = svc.GetCurrentUser(context.Background(), "expired-or-missing")
	if err != nil {
		t.Fatalf("GetCurrentUser() がエラーを返した: %v", err)
	}
	if user != nil {
		t.Error("無効なセッションではnilを返すべき")
	}
}

func TestGetCurrentUser_ValidSession_ReturnsUser(t *testing.T) {
	sessionRepo := &mockSessionRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			return &model.Session{ID: id, UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
	userRepo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{ID: id, Email: "user@example.com"}, nil
		},
	}
	svc := NewService(userRepo, sessionRepo, &mockMailer{}, NewEvents(), testServiceConfig())

	user, err := svc.GetCurrentUser(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("GetCurrentUser() がエラーを返した: %v", err)
	}
	if user == nil || user.ID != "user-1" {
		t.Errorf("user = %+v, want ID=user-1", user)
	}
}
