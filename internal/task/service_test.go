package task

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"task_tracker/internal/apperr"
	"task_tracker/internal/cache"
	"task_tracker/internal/observability"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockTaskRepository is a mock implementation of TaskRepositoryInterface
type MockTaskRepository struct {
	mock.Mock
}

func (m *MockTaskRepository) Create(ctx context.Context, task *Task) (*Task, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockTaskRepository) ListByOwner(ctx context.Context, ownerID int) ([]*Task, error) {
	args := m.Called(ctx, ownerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Task), args.Error(1)
}

func (m *MockTaskRepository) GetByID(ctx context.Context, ownerID, id int) (*Task, error) {
	args := m.Called(ctx, ownerID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockTaskRepository) UpdateStatus(ctx context.Context, ownerID, id int, status Status) (*Task, error) {
	args := m.Called(ctx, ownerID, id, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Task), args.Error(1)
}

func (m *MockTaskRepository) Delete(ctx context.Context, ownerID, id int) error {
	args := m.Called(ctx, ownerID, id)
	return args.Error(0)
}

// MockPublisher is a mock implementation of EventPublisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, payload interface{}) error {
	args := m.Called(ctx, payload)
	return args.Error(0)
}

// memoryCache is an in-process cache.Cache used to observe cache traffic.
type memoryCache struct {
	mu       sync.Mutex
	entries  map[string][]byte
	versions map[int]int64
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string][]byte{}, versions: map[int]int64{}}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[key], nil
}

func (c *memoryCache) Version(_ context.Context, userID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[userID], nil
}

func (c *memoryCache) SetIfVersion(_ context.Context, userID int, version int64, key string, data interface{}) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.versions[userID] != version {
		return nil
	}
	c.entries[key] = b
	return nil
}

func (c *memoryCache) Invalidate(_ context.Context, userID int, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.versions[userID]++
	for _, k := range keys {
		delete(c.entries, k)
	}
	return nil
}

func (c *memoryCache) InvalidateUser(ctx context.Context, userID int) error {
	return c.Invalidate(ctx, userID)
}

func (c *memoryCache) put(t *testing.T, userID int, key string, data interface{}) {
	t.Helper()
	version, err := c.Version(context.Background(), userID)
	require.NoError(t, err)
	require.NoError(t, c.SetIfVersion(context.Background(), userID, version, key, data))
}

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

var fixedNow = time.Date(2026, time.October, 15, 9, 30, 0, 0, time.UTC)

func newTestService(repo TaskRepositoryInterface, c cache.Cache, pub EventPublisher) *TaskService {
	if c == nil {
		c = cache.NoopCache{}
	}
	if pub == nil {
		mp := new(MockPublisher)
		mp.On("Publish", mock.Anything, mock.Anything).Return(nil)
		pub = mp
	}
	svc := NewTaskService(repo, c, pub, observability.NewMetrics(prometheus.NewRegistry()))
	svc.now = func() time.Time { return fixedNow }
	return svc
}

func TestCreate_Defaults(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	repo.On("Create", mock.Anything, mock.MatchedBy(func(task *Task) bool {
		return task.UserID == 1 &&
			task.Title == "Buy milk" &&
			task.Description == "" &&
			task.Status == StatusPending &&
			task.CreatedAt.Equal(fixedNow) &&
			task.CreatedAt.Location() == time.UTC
	})).Return(&Task{ID: 1, UserID: 1, Title: "Buy milk", Status: StatusPending, CreatedAt: fixedNow}, nil)

	created, err := svc.Create(context.Background(), 1, "  Buy milk ", "")

	require.NoError(t, err)
	assert.Equal(t, 1, created.ID)
	assert.Equal(t, StatusPending, created.Status)
	repo.AssertExpectations(t)
}

func TestCreate_EmptyTitle(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	for _, title := range []string{"", "   "} {
		created, err := svc.Create(context.Background(), 1, title, "d")

		assert.Nil(t, created)
		assert.ErrorIs(t, err, apperr.ErrInvalidTitle)
	}
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestCreate_PublishesEvent(t *testing.T) {
	repo := new(MockTaskRepository)
	pub := new(MockPublisher)
	svc := newTestService(repo, nil, pub)

	repo.On("Create", mock.Anything, mock.AnythingOfType("*task.Task")).
		Return(&Task{ID: 9, UserID: 2, Title: "t", Status: StatusPending}, nil)
	pub.On("Publish", mock.Anything, Event{
		Type:       EventCreated,
		TaskID:     9,
		UserID:     2,
		Status:     StatusPending,
		OccurredAt: fixedNow,
	}).Return(nil)

	_, err := svc.Create(context.Background(), 2, "t", "")

	require.NoError(t, err)
	pub.AssertExpectations(t)
}

func TestCreate_PublishFailureDoesNotFailRequest(t *testing.T) {
	repo := new(MockTaskRepository)
	pub := new(MockPublisher)
	svc := newTestService(repo, nil, pub)

	repo.On("Create", mock.Anything, mock.Anything).Return(&Task{ID: 9, UserID: 2, Status: StatusPending}, nil)
	pub.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker unreachable"))

	created, err := svc.Create(context.Background(), 2, "t", "")

	require.NoError(t, err)
	assert.Equal(t, 9, created.ID)
}

func TestGet_NotFoundForOtherOwner(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	repo.On("GetByID", mock.Anything, 1, 5).Return(&Task{ID: 5, UserID: 1, Status: StatusPending}, nil)
	repo.On("GetByID", mock.Anything, 2, 5).Return(nil, ErrTaskNotFound)
	repo.On("GetByID", mock.Anything, 1, 99).Return(nil, ErrTaskNotFound)

	owned, err := svc.Get(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, owned.ID)

	_, foreign := svc.Get(context.Background(), 2, 5)
	_, missing := svc.Get(context.Background(), 1, 99)

	assert.ErrorIs(t, foreign, apperr.ErrNotFound)
	assert.ErrorIs(t, missing, apperr.ErrNotFound)
	assert.Equal(t, foreign, missing)
}

func TestGet_StoreFailureIsInternal(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	repo.On("GetByID", mock.Anything, 1, 5).Return(nil, errors.New("connection refused"))

	_, err := svc.Get(context.Background(), 1, 5)

	assert.Same(t, apperr.ErrInternal, apperr.Lookup(err))
}

func TestGet_ReadThroughCacheScopedByOwner(t *testing.T) {
	repo := new(MockTaskRepository)
	c := newMemoryCache()
	svc := newTestService(repo, c, nil)

	repo.On("GetByID", mock.Anything, 1, 5).Return(&Task{ID: 5, UserID: 1, Title: "mine", Status: StatusPending}, nil).Once()
	repo.On("GetByID", mock.Anything, 2, 5).Return(nil, ErrTaskNotFound)

	first, err := svc.Get(context.Background(), 1, 5)
	require.NoError(t, err)
	second, err := svc.Get(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.True(t, c.has(cache.TaskKey(1, 5)))

	// owner 1's cached copy must never satisfy owner 2
	_, err = svc.Get(context.Background(), 2, 5)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	repo.AssertNumberOfCalls(t, "GetByID", 2)
}

func TestList_OrderedAndCached(t *testing.T) {
	repo := new(MockTaskRepository)
	c := newMemoryCache()
	svc := newTestService(repo, c, nil)

	tasks := []*Task{{ID: 1, UserID: 3}, {ID: 2, UserID: 3}}
	repo.On("ListByOwner", mock.Anything, 3).Return(tasks, nil).Once()

	first, err := svc.List(context.Background(), 3)
	require.NoError(t, err)
	second, err := svc.List(context.Background(), 3)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2}, []int{first[0].ID, first[1].ID})
	assert.Equal(t, first, second)
	repo.AssertExpectations(t)
}

func TestList_Empty(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	repo.On("ListByOwner", mock.Anything, 3).Return([]*Task{}, nil)

	tasks, err := svc.List(context.Background(), 3)

	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpdateStatus_InvalidatesOwnerCache(t *testing.T) {
	repo := new(MockTaskRepository)
	c := newMemoryCache()
	svc := newTestService(repo, c, nil)

	c.put(t, 1, cache.UserTasksKey(1), []*Task{{ID: 5, UserID: 1, Status: StatusPending}})
	c.put(t, 1, cache.TaskKey(1, 5), &Task{ID: 5, UserID: 1, Status: StatusPending})

	repo.On("UpdateStatus", mock.Anything, 1, 5, StatusCompleted).
		Return(&Task{ID: 5, UserID: 1, Status: StatusCompleted}, nil)
	repo.On("GetByID", mock.Anything, 1, 5).Return(&Task{ID: 5, UserID: 1, Status: StatusCompleted}, nil)

	updated, err := svc.UpdateStatus(context.Background(), 1, 5, StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, updated.Status)

	assert.False(t, c.has(cache.UserTasksKey(1)))

	reread, err := svc.Get(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, reread.Status)
}

func TestUpdateStatus_InvalidStatus(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	_, err := svc.UpdateStatus(context.Background(), 1, 5, Status("archived"))

	assert.ErrorIs(t, err, apperr.ErrInvalidStatus)
	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	repo := new(MockTaskRepository)
	svc := newTestService(repo, nil, nil)

	repo.On("UpdateStatus", mock.Anything, 2, 5, StatusCompleted).Return(nil, ErrTaskNotFound)

	_, err := svc.UpdateStatus(context.Background(), 2, 5, StatusCompleted)

	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDelete(t *testing.T) {
	repo := new(MockTaskRepository)
	pub := new(MockPublisher)
	c := newMemoryCache()
	svc := newTestService(repo, c, pub)

	c.put(t, 1, cache.TaskKey(1, 5), &Task{ID: 5, UserID: 1})

	repo.On("Delete", mock.Anything, 1, 5).Return(nil)
	repo.On("Delete", mock.Anything, 2, 5).Return(ErrTaskNotFound)
	pub.On("Publish", mock.Anything, mock.MatchedBy(func(e Event) bool {
		return e.Type == EventDeleted && e.TaskID == 5 && e.UserID == 1
	})).Return(nil).Once()

	assert.ErrorIs(t, svc.Delete(context.Background(), 2, 5), apperr.ErrNotFound)
	require.NoError(t, svc.Delete(context.Background(), 1, 5))

	assert.False(t, c.has(cache.TaskKey(1, 5)))
	pub.AssertExpectations(t)
}

// The read below overlaps a committed delete: the row it loaded must not be
// written back to the cache once the delete has invalidated it.
func TestGet_ConcurrentDeleteNotRecached(t *testing.T) {
	repo := new(MockTaskRepository)
	c := newMemoryCache()
	svc := newTestService(repo, c, nil)

	loaded := make(chan struct{})
	release := make(chan struct{})

	repo.On("GetByID", mock.Anything, 1, 7).
		Run(func(mock.Arguments) {
			close(loaded)
			<-release
		}).
		Return(&Task{ID: 7, UserID: 1, Title: "t", Status: StatusPending}, nil).Once()
	repo.On("GetByID", mock.Anything, 1, 7).Return(nil, ErrTaskNotFound)
	repo.On("Delete", mock.Anything, 1, 7).Return(nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Get(context.Background(), 1, 7)
		done <- err
	}()

	<-loaded
	require.NoError(t, svc.Delete(context.Background(), 1, 7))
	close(release)
	require.NoError(t, <-done)

	assert.False(t, c.has(cache.TaskKey(1, 7)))

	_, err := svc.Get(context.Background(), 1, 7)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestList_ConcurrentStatusUpdateNotRecached(t *testing.T) {
	repo := new(MockTaskRepository)
	c := newMemoryCache()
	svc := newTestService(repo, c, nil)

	loaded := make(chan struct{})
	release := make(chan struct{})

	repo.On("ListByOwner", mock.Anything, 1).
		Run(func(mock.Arguments) {
			close(loaded)
			<-release
		}).
		Return([]*Task{{ID: 7, UserID: 1, Status: StatusPending}}, nil).Once()
	repo.On("ListByOwner", mock.Anything, 1).
		Return([]*Task{{ID: 7, UserID: 1, Status: StatusCompleted}}, nil)
	repo.On("UpdateStatus", mock.Anything, 1, 7, StatusCompleted).
		Return(&Task{ID: 7, UserID: 1, Status: StatusCompleted}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := svc.List(context.Background(), 1)
		done <- err
	}()

	<-loaded
	_, err := svc.UpdateStatus(context.Background(), 1, 7, StatusCompleted)
	require.NoError(t, err)
	close(release)
	require.NoError(t, <-done)

	tasks, err := svc.List(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, StatusCompleted, tasks[0].Status)
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusCompleted.Valid())
	assert.False(t, Status("").Valid())
	assert.False(t, Status("PENDING").Valid())
}
