package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/taskman/internal/auth"
	"github.com/hitoshi/taskman/internal/middleware"
	"github.com/hitoshi/taskman/internal/model"
)

type routerSessionFinder struct {
	session *model.Session
}

func (f *routerSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if f.session != nil && f.session.ID == id {
		return f.session, nil
	}
	return nil, nil
}

func newTestRouter(finder middleware.SessionFinder, taskService TaskServiceInterface) http.Handler {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(100),
		GeneralBurst:    100,
		TaskCreateRate:  rate.Limit(100),
		TaskCreateBurst: 100,
		CleanupInterval: time.Hour,
	})

	return NewRouter(&RouterDeps{
		SessionFinder:     finder,
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		Logger:            slog.Default(),

		AuthService: &mockAuthService{},
		AuthEvents:  auth.NewEvents(),
		AuthConfig:  AuthHandlerConfig{SessionMaxAge: 86400},

		TaskService: taskService,
	})
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router := newTestRouter(&routerSessionFinder{}, &mockTaskService{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRouter_TasksWithoutSession_Returns401(t *testing.T) {
	router := newTestRouter(&routerSessionFinder{}, &mockTaskService{})

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestRouter_TasksWithValidSession_ReachesHandler(t *testing.T) {
	finder := &routerSessionFinder{
		session: &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}

	var gotUserID string
	taskService := &mockTaskService{
		listFn: func(ctx context.Context, userID string) ([]*model.Task, error) {
			gotUserID = userID
			return nil, nil
		},
	}

	router := newTestRouter(finder, taskService)

	req := httptest.NewRequest(http.MethodGet, "/api/tasks", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUserID != "user-1" {
		t.Errorf("userID = %q, want %q", gotUserID, "user-1")
	}
}

func TestRouter_PostWithoutCSRFToken_Returns403(t *testing.T) {
	finder := &routerSessionFinder{
		session: &model.Session{ID: "session-abc", UserID: "user-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
	router := newTestRouter(finder, &mockTaskService{})

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRouter_PreflightBypassesAuth(t *testing.T) {
	router := newTestRouter(&routerSessionFinder{}, &mockTaskService{})

	req := httptest.NewRequest(http.MethodOptions, "/api/tasks", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}
