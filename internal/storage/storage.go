// Package storage defines the backend-agnostic sink for extraction output.
//
// The engine itself never touches a database; callers that want persistence
// construct a Repository for their backend kind and hand it the parsed order
// lines or mapped records. Backends register themselves from init() so the
// set of linked backends is decided by imports, not by this package.
package storage

import (
	"context"
	"fmt"
	"sync"

	"mezzetl/internal/csvmap"
	"mezzetl/internal/weekly"
)

// Config selects and configures a backend.
//
// Edge cases:
//   - Kind must match a registered backend kind ("postgres", "sqlite", "mssql").
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Repository persists extraction output.
//
// All write operations are idempotent for order lines: re-ingesting the same
// workbook must not duplicate rows. Mapped records carry no natural key, so
// InsertRecords is a plain append.
type Repository interface {
	// Close releases backend resources. Treat as "call once" at shutdown.
	Close()

	// EnsureSchema creates the destination tables if they do not exist.
	EnsureSchema(ctx context.Context) error

	// InsertOrderLines writes parsed weekly order lines. Lines whose natural
	// key (tab, row, product, unit) already exists are skipped. Returns the
	// number of rows actually inserted.
	InsertOrderLines(ctx context.Context, runID string, lines []weekly.OrderLine) (int64, error)

	// InsertRecords writes mapped records for the named mapping. Field maps
	// are stored as JSON. Returns the number of rows inserted.
	InsertRecords(ctx context.Context, runID, mapping string, records []csvmap.Record) (int64, error)
}

type factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend factory under a kind. Backend packages call
// this from init().
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered. Duplicate registration would make
//     backend selection ambiguous, so it fails fast.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// New constructs a Repository for the configured backend kind.
//
// Errors:
//   - If cfg.Kind is empty or not registered.
//   - Whatever error the registered factory returns.
func New(ctx context.Context, cfg Config) (Repository, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("unsupported storage kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, for error messages and CLI help.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	return out
}
