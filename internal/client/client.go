// Package client はタスク管理バックエンドのAPIクライアントを提供する。
//
// SessionManager が認証状態のライフサイクルを管理し、TaskRepository が
// タスクのCRUD操作を提供する。両者はClientを介してHTTP APIと通信する。
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"
)

const csrfHeaderName = "X-CSRF-Token"

// apiError はバックエンドの統一エラーフォーマット。
type apiError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// Client はバックエンドAPIとのHTTP通信を担う。
// セッションCookieはcookiejarで自動管理される。
type Client struct {
	httpClient *http.Client
	baseURL    string

	mu        sync.Mutex
	csrfToken string
}

// NewClient はClientを生成する。
// httpClientがnilの場合はCookie管理付きのデフォルトクライアントを使用する。
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		httpClient = &http.Client{
			Jar:     jar,
			Timeout: 30 * time.Second,
		}
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}, nil
}

// doJSON はJSONリクエストを送信し、成功時はレスポンスボディをoutにデコードする。
// 状態変更メソッドには事前に取得したCSRFトークンを付与する。
// 非2xxレスポンスはdecodeAPIErrorで統一エラーフォーマットとして解釈する。
func (c *Client) doJSON(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if method != http.MethodGet && method != http.MethodHead {
		token, err := c.ensureCSRFToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set(csrfHeaderName, token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response body: %w", err)
		}
	}

	return nil
}

// ensureCSRFToken はCSRFトークンを取得する。
// 取得済みの場合はキャッシュを返す（トークンCookieはcookiejarが保持する）。
func (c *Client) ensureCSRFToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch CSRF token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("CSRF token endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		CSRFToken string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("failed to decode CSRF token response: %w", err)
	}

	c.mu.Lock()
	c.csrfToken = payload.CSRFToken
	c.mu.Unlock()

	return payload.CSRFToken, nil
}

// decodeAPIError は非2xxレスポンスを型付きエラーに変換する。
// 統一エラーフォーマットとして解釈できない場合はRepositoryErrorとして扱う。
func decodeAPIError(resp *http.Response) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return &RepositoryError{Message: fmt.Sprintf("failed to read error response (status %d)", resp.StatusCode)}
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Code == "" {
		return &RepositoryError{Message: fmt.Sprintf("unexpected response (status %d)", resp.StatusCode)}
	}

	switch apiErr.Code {
	case "AUTH_REJECTED":
		return &AuthRejectedError{Reason: apiErr.Message}
	case "EMAIL_NOT_CONFIRMED":
		return ErrEmailNotConfirmed
	case "NOT_AUTHENTICATED":
		return ErrNotAuthenticated
	default:
		return &RepositoryError{Code: apiErr.Code, Message: apiErr.Message}
	}
}
