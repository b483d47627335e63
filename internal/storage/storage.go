// Package storage holds encrypted attachment blobs in a flat namespace.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrNotFound    = errors.New("storage: object not found")
	ErrInvalidName = errors.New("storage: invalid object name")
)

// Object describes a stored blob for the orphan sweep.
type Object struct {
	Name    string
	ModTime time.Time
}

type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns ErrNotFound when the object does not exist.
	Get(ctx context.Context, name string) ([]byte, error)
	// Delete succeeds when the object is already gone.
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Object, error)
}

func validateName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
