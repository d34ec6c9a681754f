package server

import (
	"context"
)

// Cache defines the interface for caching operations
type Cache interface {
	GetItem(ctx context.Context, id string) (Item, error)
	SetItem(ctx context.Context, item Item) error
	DeleteItem(ctx context.Context, id string) error
}

// NoOpCache implements the Cache interface but does nothing
type NoOpCache struct{}

// GetItem returns a not found error
func (c *NoOpCache) GetItem(ctx context.Context, id string) (Item, error) {
	return nil, ErrNotFound
}

// SetItem does nothing
func (c *NoOpCache) SetItem(ctx context.Context, item Item) error {
	return nil
}

// DeleteItem does nothing
func (c *NoOpCache) DeleteItem(ctx context.Context, id string) error {
	return nil
}
