package server

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an item does not exist in a store.
var ErrNotFound = errors.New("item not found")

// ErrAlreadyExists is returned when creating an item whose id is taken.
var ErrAlreadyExists = errors.New("item already exists")

// Item represents a user-supplied record. The only required field is a
// non-empty string "id", which serves as the primary key in both stores.
type Item map[string]interface{}

// ID returns the item's id field, or "" if it is missing or not a string.
func (i Item) ID() string {
	id, _ := i["id"].(string)
	return id
}

// TableStore defines the interface for item table operations
type TableStore interface {
	// EnsureTable idempotently verifies the backing table exists,
	// creating it if absent. Any other failure is fatal to startup.
	EnsureTable(ctx context.Context) error

	// GetItem fetches the item for id. Returns ErrNotFound when no row
	// exists; backend failures are returned as distinct errors.
	GetItem(ctx context.Context, id string) (Item, error)

	// PutItem unconditionally writes the item (create-or-overwrite).
	PutItem(ctx context.Context, item Item) error

	// CreateItem writes the item only if its id is not already present,
	// returning ErrAlreadyExists otherwise.
	CreateItem(ctx context.Context, item Item) error

	// DeleteItem removes the row for id. Deleting a non-existent id is
	// not an error at this layer.
	DeleteItem(ctx context.Context, id string) error
}
