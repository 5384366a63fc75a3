// Package repository contains data access layer abstractions.
// Implementations live in subpackages (postgres, pebble) inside this directory.
package repository

import (
	"context"
	"errors"

	"retailapi/internal/model"
)

var (
	// ErrNotFound is returned when no entity has the requested (partition, id).
	ErrNotFound = errors.New("entity not found")
	// ErrDuplicateKey is returned by Put when (partition, id) is already taken.
	ErrDuplicateKey = errors.New("entity already exists")
	// ErrVersionMismatch is returned by a conditional Update whose version no longer matches.
	ErrVersionMismatch = errors.New("entity version mismatch")
)

// EntityRepository persists entities keyed by (partition, id).
// No business logic here: strictly persistence operations.
type EntityRepository interface {
	// Get returns one entity or ErrNotFound.
	Get(ctx context.Context, partition, id string) (*model.Entity, error)

	// Put inserts a new entity and returns it with Version and LastModified assigned.
	// It fails with ErrDuplicateKey if the key is taken; it never overwrites.
	Put(ctx context.Context, e *model.Entity) (*model.Entity, error)

	// Update replaces an existing entity. An empty ifMatch means last writer wins;
	// otherwise the stored Version must equal ifMatch or ErrVersionMismatch is returned.
	Update(ctx context.Context, e *model.Entity, ifMatch string) (*model.Entity, error)

	// Delete removes an entity. It returns nil if the entity did not exist.
	Delete(ctx context.Context, partition, id string) error

	// QueryByPartition returns every entity of a partition, in store order.
	QueryByPartition(ctx context.Context, partition string) ([]model.Entity, error)
}
