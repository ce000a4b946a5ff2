package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Identity は認証済みプリンシパルのスナップショットを表す。
// バックエンドが生成し、クライアント側ではイミュータブルとして扱う。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session は現在の認証状態を表す。
// Identityがnilの場合は匿名（未認証）、非nilの場合は認証済み。
// 中間状態は存在しない。
type Session struct {
	Identity *Identity
}

// Authenticated は認証済みかどうかを返す。
func (s Session) Authenticated() bool {
	return s.Identity != nil
}

// sessionEvent はセッション変更フィードのワイヤーフォーマット。
type sessionEvent struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// SessionManager は現在のSessionを保持し、認証状態の遷移を仲介する。
//
// 状態は{匿名, 認証済み(Identity)}のいずれかで、サインイン・サインアウト
// またはバックエンドからのプッシュ通知によってのみ遷移する。
// 初期状態は匿名で、起動時に既存セッションの有無を非同期に解決する。
//
// バックエンドのセッション変更フィードへの購読はプロセスにつき1本だけ
// 維持され、Closeで解放される。
type SessionManager struct {
	client *Client

	mu        sync.RWMutex
	current   Session
	observers map[chan Session]struct{}
	closed    bool

	// authCh は認証状態の変化をフィード購読ループに通知する。
	authCh chan struct{}

	settled     chan struct{}
	settleOnce  sync.Once
	cancel      context.CancelFunc
	closeOnce   sync.Once
	subscribeWG sync.WaitGroup
}

// NewSessionManager はSessionManagerを生成し、初期セッション解決と
// セッション変更フィードの購読を開始する。
// 使用後は必ずCloseを呼び、購読を解放すること。
func NewSessionManager(client *Client) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &SessionManager{
		client:    client,
		observers: make(map[chan Session]struct{}),
		authCh:    make(chan struct{}, 1),
		settled:   make(chan struct{}),
		cancel:    cancel,
	}

	m.subscribeWG.Add(2)
	go m.resolveInitialSession(ctx)
	go m.watchSessionFeed(ctx)

	return m
}

// Current は現在のSessionのスナップショットを返す。
// 返されるIdentityはコピーであり、呼び出し側が変更しても内部状態に影響しない。
func (m *SessionManager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current.Identity == nil {
		return Session{}
	}
	identity := *m.current.Identity
	return Session{Identity: &identity}
}

// Settled は初期セッション解決の完了時にクローズされるチャネルを返す。
// 起動直後のUIゲーティングはこのチャネルを待ってから行う。
func (m *SessionManager) Settled() <-chan struct{} {
	return m.settled
}

// Watch はSession遷移の購読を開始する。
// 返されたcancelを呼ぶと購読が解除され、チャネルがクローズされる。
// 受信が追いつかない購読者への配信はドロップされる
// （最新状態はCurrentで再取得する）。
func (m *SessionManager) Watch() (<-chan Session, func()) {
	ch := make(chan Session, 8)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	m.observers[ch] = struct{}{}
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			_, registered := m.observers[ch]
			delete(m.observers, ch)
			m.mu.Unlock()
			if registered {
				close(ch)
			}
		})
	}

	return ch, cancel
}

// SignUp はアカウント作成を要求する。
// バックエンドがメール確認を要求するため、成功してもSessionは確立されない。
// 拒否はAuthRejectedErrorとして返す。
func (m *SessionManager) SignUp(ctx context.Context, email, password string) error {
	req := map[string]string{
		"email":    email,
		"password": password,
	}
	return m.client.doJSON(ctx, http.MethodPost, "/auth/signup", req, nil)
}

// SignIn は資格情報でサインインする。
// 成功時はSessionが認証済みに遷移する。
// 資格情報不一致はAuthRejectedError、メール未確認はErrEmailNotConfirmedを返す。
func (m *SessionManager) SignIn(ctx context.Context, email, password string) error {
	req := map[string]string{
		"email":    email,
		"password": password,
	}

	var identity Identity
	if err := m.client.doJSON(ctx, http.MethodPost, "/auth/signin", req, &identity); err != nil {
		return err
	}

	m.setSession(Session{Identity: &identity})
	return nil
}

// SignOut はサインアウトする。冪等。
// リモート呼び出しの成否にかかわらずローカルのSessionは匿名に遷移する。
// リモート呼び出し自体が失敗した場合のみAuthServiceErrorを返す。
func (m *SessionManager) SignOut(ctx context.Context) error {
	err := m.client.doJSON(ctx, http.MethodPost, "/auth/logout", nil, nil)

	// ローカル状態はリモートの結果を問わずサインアウト済みとする
	m.setSession(Session{})

	if err != nil {
		return &AuthServiceError{Err: err}
	}
	return nil
}

// Close はフィード購読を解放し、全観測チャネルをクローズする。
// プロセス終了時に必ず呼ぶこと。
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		m.cancel()
		m.subscribeWG.Wait()

		m.mu.Lock()
		m.closed = true
		for ch := range m.observers {
			close(ch)
		}
		m.observers = make(map[chan Session]struct{})
		m.mu.Unlock()
	})
}

// setSession は現在のSessionを更新し、全購読者に配信する。
func (m *SessionManager) setSession(session Session) {
	m.mu.Lock()
	m.current = session
	for ch := range m.observers {
		snapshot := session
		if session.Identity != nil {
			identity := *session.Identity
			snapshot = Session{Identity: &identity}
		}
		select {
		case ch <- snapshot:
		default:
		}
	}
	m.mu.Unlock()

	// フィード購読ループに状態変化を通知
	select {
	case m.authCh <- struct{}{}:
	default:
	}
}

// resolveInitialSession は起動時に既存の有効なセッションを問い合わせる。
// 有効なセッションがあれば認証済みに遷移し、なければ匿名のまま確定する。
func (m *SessionManager) resolveInitialSession(ctx context.Context) {
	defer m.subscribeWG.Done()
	defer m.settleOnce.Do(func() { close(m.settled) })

	var identity Identity
	err := m.client.doJSON(ctx, http.MethodGet, "/auth/me", nil, &identity)
	if err != nil {
		// 未認証は正常な初期状態
		return
	}

	m.setSession(Session{Identity: &identity})
}

// watchSessionFeed はセッション変更フィード（SSE）への購読を維持する。
// 認証済みの間だけ接続を張り、切断時は再接続する。
// signed_outイベントを受信すると匿名に遷移する（外部からの無効化、
// 別タブでのサインアウトに対応）。
func (m *SessionManager) watchSessionFeed(ctx context.Context) {
	defer m.subscribeWG.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		if !m.Current().Authenticated() {
			// 認証されるまで待機
			select {
			case <-ctx.Done():
				return
			case <-m.authCh:
				continue
			}
		}

		err := m.consumeFeed(ctx)
		if ctx.Err() != nil {
			return
		}

		// フィード自体が認証拒否された場合、セッションは外部で無効化されている
		// （期限切れ・クリーンアップによる削除・取り消し）。signed_outイベントは
		// もう届かないため、ここで匿名に遷移させる。
		if errors.Is(err, ErrNotAuthenticated) {
			m.setSession(Session{})
			continue
		}

		if err != nil {
			slog.Debug("session feed disconnected", slog.String("error", err.Error()))
		}

		// 正常切断でも即時再接続はせず、接続間隔を空ける
		select {
		case <-ctx.Done():
			return
		case <-time.After(5 * time.Second):
		}
	}
}

// consumeFeed はSSE接続を1本張り、切断までイベントを処理する。
func (m *SessionManager) consumeFeed(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.client.baseURL+"/auth/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := m.client.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeAPIError(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}

		var evt sessionEvent
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt); err != nil {
			continue
		}

		switch evt.Type {
		case "signed_out":
			m.setSession(Session{})
		case "signed_in":
			// 別タブ等で再開された可能性があるため最新の識別情報を取得
			var identity Identity
			if err := m.client.doJSON(ctx, http.MethodGet, "/auth/me", nil, &identity); err == nil {
				m.setSession(Session{Identity: &identity})
			}
		}
	}

	return scanner.Err()
}
