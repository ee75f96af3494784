// Package storage defines the durable key/value medium the editor state is
// persisted to, with SQLite, file system and Redis backends.
package storage

import (
	"context"
	"fmt"
	"regexp"
)

// Drivers.
const (
	DriverSQLite = "sqlite"
	DriverFS     = "fs"
	DriverRedis  = "redis"
)

// KV is a string-keyed, string-valued durable store. Writes are whole-value
// overwrites.
type KV interface {
	// Get returns the value stored under key; ok is false when absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Close releases the backend.
	Close() error
}

var keyRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

func checkKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("storage: invalid key %q", key)
	}
	return nil
}

// Options selects and configures a backend.
type Options struct {
	Driver   string
	Path     string
	RedisURL string
}

// Open returns the backend named by opts.Driver.
func Open(ctx context.Context, opts Options) (KV, error) {
	switch opts.Driver {
	case DriverSQLite, "":
		return OpenSQLite(opts.Path)
	case DriverFS:
		return NewFS(opts.Path)
	case DriverRedis:
		return NewRedis(ctx, opts.RedisURL)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
	}
}
