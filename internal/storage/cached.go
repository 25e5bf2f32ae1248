package storage

import (
	"context"
	"time"

	"github.com/dailytrack/dailytrack/internal/domain"
	"github.com/dailytrack/dailytrack/internal/model"
)

// Ensure CachedStorage implements domain.Storage
var _ domain.Storage = (*CachedStorage)(nil)

// CachedStorage wraps a backend with the user read cache. Only user
// lookups are cached; record lists change on every mutation and are
// invalidated client-side over the realtime channel instead.
type CachedStorage struct {
	domain.Storage
	cache *UserCache
}

// NewCachedStorage wraps the given backend with a user cache.
func NewCachedStorage(backend domain.Storage, capacity int, expiration time.Duration) (*CachedStorage, error) {
	cache, err := NewUserCache(capacity, expiration)
	if err != nil {
		return nil, err
	}
	return &CachedStorage{Storage: backend, cache: cache}, nil
}

func (c *CachedStorage) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if user, found := c.cache.GetByID(id); found {
		return user, nil
	}
	user, err := c.Storage.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cache.Set(user)
	return user, nil
}

func (c *CachedStorage) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	if user, found := c.cache.GetByEmail(email); found {
		return user, nil
	}
	user, err := c.Storage.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	c.cache.Set(user)
	return user, nil
}

func (c *CachedStorage) UpdatePassword(ctx context.Context, userID string, passwordHash string) (bool, error) {
	updated, err := c.Storage.UpdatePassword(ctx, userID, passwordHash)
	if updated {
		if user, found := c.cache.GetByID(userID); found {
			c.cache.Invalidate(user)
		}
	}
	return updated, err
}

func (c *CachedStorage) UpdatePasswordByEmail(ctx context.Context, email string, passwordHash string) (bool, error) {
	updated, err := c.Storage.UpdatePasswordByEmail(ctx, email, passwordHash)
	if updated {
		if user, found := c.cache.GetByEmail(email); found {
			c.cache.Invalidate(user)
		}
	}
	return updated, err
}

func (c *CachedStorage) DeleteUser(ctx context.Context, id string) (bool, error) {
	if user, found := c.cache.GetByID(id); found {
		c.cache.Invalidate(user)
	}
	return c.Storage.DeleteUser(ctx, id)
}
