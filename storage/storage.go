package storage

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when the key has no object.
	ErrNotFound = errors.New("storage: key not found")

	// ErrAlreadyExists is returned by PutIfAbsent when the key is occupied.
	ErrAlreadyExists = errors.New("storage: key already exists")
)

// Storage is the blob-store capability the metadata layer is built on.
// Implementations must provide per-key atomicity and read-after-write
// visibility; cross-key transactions are not assumed. PutIfAbsent is the
// only coordination primitive between concurrent writers.
type Storage interface {
	// Get returns the object at key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes the object at key, replacing any existing object.
	Put(ctx context.Context, key string, data []byte) error

	// PutIfAbsent writes the object only when key is unoccupied. When the
	// key already holds an object it returns ErrAlreadyExists and writes
	// nothing. The check and the write must be atomic.
	PutIfAbsent(ctx context.Context, key string, data []byte) error

	// Delete removes the object at key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error

	// List returns the keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists reports whether key holds an object.
	Exists(ctx context.Context, key string) (bool, error)
}
