package task

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"task_tracker/internal/apperr"
	"task_tracker/internal/cache"
	"task_tracker/internal/observability"

	"github.com/sirupsen/logrus"
)

// EventPublisher delivers task lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, payload interface{}) error
}

// TaskServiceInterface is the task API available to an authenticated owner.
// No method can reach a task whose owner differs from ownerID.
type TaskServiceInterface interface {
	Create(ctx context.Context, ownerID int, title, description string) (*Task, error)
	List(ctx context.Context, ownerID int) ([]*Task, error)
	Get(ctx context.Context, ownerID, taskID int) (*Task, error)
	UpdateStatus(ctx context.Context, ownerID, taskID int, status Status) (*Task, error)
	Delete(ctx context.Context, ownerID, taskID int) error
}

type TaskService struct {
	repo      TaskRepositoryInterface
	cache     cache.Cache
	publisher EventPublisher
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewTaskService(
	repo TaskRepositoryInterface,
	taskCache cache.Cache,
	publisher EventPublisher,
	metrics *observability.Metrics,
) *TaskService {
	return &TaskService{
		repo:      repo,
		cache:     taskCache,
		publisher: publisher,
		metrics:   metrics,
		now:       time.Now,
	}
}

func (s *TaskService) Create(ctx context.Context, ownerID int, title, description string) (*Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperr.ErrInvalidTitle
	}

	created, err := s.repo.Create(ctx, &Task{
		UserID:      ownerID,
		Title:       title,
		Description: description,
		Status:      StatusPending,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	s.metrics.TasksCreatedTotal.Inc()
	s.afterWrite(ctx, created, EventCreated)
	return created, nil
}

func (s *TaskService) List(ctx context.Context, ownerID int) ([]*Task, error) {
	cacheKey := cache.UserTasksKey(ownerID)
	var cached []*Task
	if s.readCache(ctx, cacheKey, "user_tasks", &cached) {
		return cached, nil
	}

	version, cacheable := s.cacheVersion(ctx, ownerID)
	tasks, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if cacheable {
		s.writeCache(ctx, ownerID, version, cacheKey, tasks)
	}
	return tasks, nil
}

func (s *TaskService) Get(ctx context.Context, ownerID, taskID int) (*Task, error) {
	cacheKey := cache.TaskKey(ownerID, taskID)
	var cached Task
	if s.readCache(ctx, cacheKey, "task", &cached) && cached.UserID == ownerID {
		return &cached, nil
	}

	version, cacheable := s.cacheVersion(ctx, ownerID)
	t, err := s.repo.GetByID(ctx, ownerID, taskID)
	if err != nil {
		return nil, mapNotFound(err)
	}

	if cacheable {
		s.writeCache(ctx, ownerID, version, cacheKey, t)
	}
	return t, nil
}

func (s *TaskService) UpdateStatus(ctx context.Context, ownerID, taskID int, status Status) (*Task, error) {
	if !status.Valid() {
		return nil, apperr.ErrInvalidStatus
	}

	updated, err := s.repo.UpdateStatus(ctx, ownerID, taskID, status)
	if err != nil {
		return nil, mapNotFound(err)
	}

	s.metrics.TaskStatusUpdatesTotal.WithLabelValues(string(status)).Inc()
	s.afterWrite(ctx, updated, EventStatusChanged)
	return updated, nil
}

func (s *TaskService) Delete(ctx context.Context, ownerID, taskID int) error {
	if err := s.repo.Delete(ctx, ownerID, taskID); err != nil {
		return mapNotFound(err)
	}

	s.metrics.TasksDeletedTotal.Inc()
	s.afterWrite(ctx, &Task{ID: taskID, UserID: ownerID}, EventDeleted)
	return nil
}

// afterWrite runs once the write is committed: the owner's cache version is
// bumped and the affected keys dropped before returning, then the event is
// published. Neither step can fail the operation.
func (s *TaskService) afterWrite(ctx context.Context, t *Task, eventType EventType) {
	if err := s.cache.Invalidate(ctx, t.UserID, cache.UserTasksKey(t.UserID), cache.TaskKey(t.UserID, t.ID)); err != nil {
		logrus.WithError(err).WithField("user_id", t.UserID).Warn("Failed to invalidate task cache")
	}

	event := Event{
		Type:       eventType,
		TaskID:     t.ID,
		UserID:     t.UserID,
		Status:     t.Status,
		OccurredAt: s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"task_id": t.ID,
			"event":   eventType,
		}).Warn("Failed to publish task event")
	}
}

func (s *TaskService) readCache(ctx context.Context, key, keyType string, dest interface{}) bool {
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read task cache")
	}
	if err == nil && data != nil && json.Unmarshal(data, dest) == nil {
		s.metrics.CacheHitsTotal.WithLabelValues(keyType).Inc()
		return true
	}
	s.metrics.CacheMissesTotal.WithLabelValues(keyType).Inc()
	return false
}

// cacheVersion must be taken before the store is queried. When it cannot be
// read the result is not cached.
func (s *TaskService) cacheVersion(ctx context.Context, ownerID int) (int64, bool) {
	version, err := s.cache.Version(ctx, ownerID)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read task cache version")
		return 0, false
	}
	return version, true
}

func (s *TaskService) writeCache(ctx context.Context, ownerID int, version int64, key string, data interface{}) {
	if err := s.cache.SetIfVersion(ctx, ownerID, version, key, data); err != nil {
		logrus.WithError(err).Warn("Failed to set task cache")
	}
}

func mapNotFound(err error) error {
	if errors.Is(err, ErrTaskNotFound) {
		return apperr.ErrNotFound
	}
	return err
}
