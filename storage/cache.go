package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohdragon010/taskflow/domain"
)

type backend interface {
	CreateTask(ctx context.Context, userID, title string) (domain.Task, error)
	UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) error
	DeleteTask(ctx context.Context, userID, id string) error
	FetchTasks(ctx context.Context, userID string) ([]domain.Task, error)
	CreateAccount(ctx context.Context, acc domain.Account) error
	FetchAccountByEmail(ctx context.Context, email string) (domain.Account, error)
	UpdateDisplayName(ctx context.Context, email, displayName string) error
	EnqueueChange(ctx context.Context, ev domain.ChangeEvent) error
}

// Cache wraps a Storage instance with Redis-backed caching of task snapshots.
// Every task mutation evicts the owner's snapshot so subscribers always
// refetch current state. Account operations are never cached.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Storage wrapper using the provided Redis client
// and TTL. A nil client disables caching without disabling the wrapper.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
}

func (c *Cache) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	if tasks, ok := c.loadTasksFromCache(ctx, userID); ok {
		return tasks, nil
	}

	tasks, err := c.base.FetchTasks(ctx, userID)
	if err != nil {
		return nil, err
	}

	c.storeTasks(ctx, userID, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, userID, title string) (domain.Task, error) {
	task, err := c.base.CreateTask(ctx, userID, title)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, userID)
	return task, nil
}

func (c *Cache) UpdateTask(ctx context.Context, userID, id string, patch domain.TaskPatch) error {
	if err := c.base.UpdateTask(ctx, userID, id, patch); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, userID, id string) error {
	if err := c.base.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	c.evict(ctx, userID)
	return nil
}

func (c *Cache) CreateAccount(ctx context.Context, acc domain.Account) error {
	return c.base.CreateAccount(ctx, acc)
}

func (c *Cache) FetchAccountByEmail(ctx context.Context, email string) (domain.Account, error) {
	return c.base.FetchAccountByEmail(ctx, email)
}

func (c *Cache) UpdateDisplayName(ctx context.Context, email, displayName string) error {
	return c.base.UpdateDisplayName(ctx, email, displayName)
}

func (c *Cache) EnqueueChange(ctx context.Context, ev domain.ChangeEvent) error {
	return c.base.EnqueueChange(ctx, ev)
}

func (c *Cache) loadTasksFromCache(ctx context.Context, userID string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.Get(ctx, tasksCacheKey(userID)).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.Del(ctx, tasksCacheKey(userID)).Err()
		return nil, false
	}
	return tasks, true
}

func (c *Cache) storeTasks(ctx context.Context, userID string, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, tasksCacheKey(userID), data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, userID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(userID)).Result()
}

func tasksCacheKey(userID string) string {
	return "tasks:" + userID
}
