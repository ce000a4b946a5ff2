// Package task はタスクのCRUDに関するビジネスロジックを提供する。
package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/taskman/internal/model"
	"github.com/hitoshi/taskman/internal/repository"
	"github.com/hitoshi/taskman/internal/security"
)

// CreateTaskInput はタスク作成の入力を表す。
type CreateTaskInput struct {
	Title       string
	Description string
	Status      model.TaskStatus
	Priority    model.TaskPriority
	DueDate     time.Time
}

// Service はタスク管理のビジネスロジックを提供する。
// 所有権の刻印（作成時のuser_id設定）と入力検証を担い、
// 所有権の強制自体はリポジトリ層のSQLスコープに委ねる。
type Service struct {
	taskRepo  repository.TaskRepository
	sanitizer security.TextSanitizerService
}

// NewService はServiceを生成する。
func NewService(taskRepo repository.TaskRepository, sanitizer security.TextSanitizerService) *Service {
	return &Service{
		taskRepo:  taskRepo,
		sanitizer: sanitizer,
	}
}

// Create は認証済みユーザーのタスクを作成する。
// UserIDにはuserIDが刻印され、以降変更されない。
func (s *Service) Create(ctx context.Context, userID string, input CreateTaskInput) (*model.Task, error) {
	title := s.sanitizer.Sanitize(input.Title)
	if title == "" {
		return nil, model.NewInvalidTitleError()
	}
	if !input.Status.Valid() {
		return nil, model.NewInvalidStatusError(string(input.Status))
	}
	if !input.Priority.Valid() {
		return nil, model.NewInvalidPriorityError(string(input.Priority))
	}
	if input.DueDate.IsZero() {
		return nil, model.NewInvalidDueDateError("")
	}

	now := time.Now().UTC()
	task := &model.Task{
		ID:          uuid.New().String(),
		UserID:      userID,
		Title:       title,
		Description: s.sanitizer.Sanitize(input.Description),
		Status:      input.Status,
		Priority:    input.Priority,
		DueDate:     input.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.taskRepo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	slog.Info("task created",
		slog.String("task_id", task.ID),
		slog.String("user_id", userID),
	)
	return task, nil
}

// List はユーザーのタスク一覧をdue_date昇順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Task, error) {
	tasks, err := s.taskRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Update はユーザーが所有するタスクを部分更新する。
// patchのnilフィールドは変更しない。
// 不存在と他ユーザー所有はどちらもTASK_NOT_FOUNDとして返す
// （存在の漏洩を防ぐため、意図的に区別しない）。
func (s *Service) Update(ctx context.Context, userID, taskID string, patch *model.TaskPatch) (*model.Task, error) {
	if patch.Empty() {
		return nil, model.NewEmptyPatchError()
	}

	if patch.Title != nil {
		title := s.sanitizer.Sanitize(*patch.Title)
		if title == "" {
			return nil, model.NewInvalidTitleError()
		}
		patch.Title = &title
	}
	if patch.Description != nil {
		desc := s.sanitizer.Sanitize(*patch.Description)
		patch.Description = &desc
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return nil, model.NewInvalidStatusError(string(*patch.Status))
	}
	if patch.Priority != nil && !patch.Priority.Valid() {
		return nil, model.NewInvalidPriorityError(string(*patch.Priority))
	}

	task, err := s.taskRepo.UpdateByIDAndUser(ctx, taskID, userID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	if task == nil {
		return nil, model.NewTaskNotFoundError(taskID)
	}

	slog.Info("task updated",
		slog.String("task_id", taskID),
		slog.String("user_id", userID),
	)
	return task, nil
}

// Delete はユーザーが所有するタスクを削除する。
// 不存在と他ユーザー所有はどちらもTASK_NOT_FOUNDとして返す。
func (s *Service) Delete(ctx context.Context, userID, taskID string) error {
	deleted, err := s.taskRepo.DeleteByIDAndUser(ctx, taskID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	if !deleted {
		return model.NewTaskNotFoundError(taskID)
	}

	slog.Info("task deleted",
		slog.String("task_id", taskID),
		slog.String("user_id", userID),
	)
	return nil
}
