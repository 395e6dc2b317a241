package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/zaptasks/zaptasks-api/internal/model"
	"github.com/zaptasks/zaptasks-api/internal/repository"
)

const (
	minRating = 1
	maxRating = 5
)

// ListTasks возвращает задания, при непустой категории только из неё.
func (s *Service) ListTasks(ctx context.Context, category string) ([]model.Task, error) {
	return s.repo.ListTasks(ctx, strings.TrimSpace(category))
}

// GetTask возвращает задание по идентификатору.
func (s *Service) GetTask(ctx context.Context, taskID string) (*model.Task, error) {
	id, err := uuid.Parse(strings.TrimSpace(taskID))
	if err != nil {
		return nil, validationError("taskId must be a UUID")
	}
	return s.getTask(ctx, id.String())
}

func (s *Service) getTask(ctx context.Context, id string) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrTaskNotFound) {
			return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
		}
		return nil, err
	}
	return task, nil
}

// RateTask сохраняет оценку участника задания о второй стороне.
// Повторная оценка того же участника заменяет предыдущую.
func (s *Service) RateTask(ctx context.Context, ident model.Identity, r model.Rating) (*model.Review, error) {
	if r.Rating < minRating || r.Rating > maxRating {
		return nil, validationError("rating must be between %d and %d", minRating, maxRating)
	}

	id, err := uuid.Parse(strings.TrimSpace(r.TaskID))
	if err != nil {
		return nil, validationError("taskId must be a UUID")
	}

	task, err := s.getTask(ctx, id.String())
	if err != nil {
		return nil, err
	}

	var reviewee string
	switch {
	case ident.UserID == task.ClientID:
		if task.ProviderID == nil {
			return nil, fmt.Errorf("%w: task %s has no provider yet", ErrConflict, task.ID)
		}
		reviewee = *task.ProviderID
	case task.ProviderID != nil && ident.UserID == *task.ProviderID:
		reviewee = task.ClientID
	default:
		return nil, fmt.Errorf("%w: user is not a participant of task %s", ErrForbidden, task.ID)
	}

	return s.repo.UpsertReview(ctx, model.Review{
		TaskID:     task.ID,
		ReviewerID: ident.UserID,
		RevieweeID: reviewee,
		Rating:     r.Rating,
		Comment:    strings.TrimSpace(r.Comment),
	})
}
