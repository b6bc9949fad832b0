// Package storage provides the durable key/value stores that hold the
// dashboard's persisted client state (the signed-in identity and preferences).
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when a key has no value.
var ErrNotFound = errors.New("storage: key not found")

// Store is a string key/value store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set replaces the value for key.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Driver names accepted by the serve command.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// ParseDriver normalises a driver name and rejects unknown ones.
func ParseDriver(name string) (string, error) {
	switch d := strings.ToLower(strings.TrimSpace(name)); d {
	case DriverMemory, DriverFile, DriverPostgres:
		return d, nil
	case "":
		return DriverFile, nil
	default:
		return "", fmt.Errorf("storage: unknown driver %q", name)
	}
}

func validateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("storage: key cannot be empty")
	}
	return nil
}
