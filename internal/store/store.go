// Package store persists options and per-item meta.
package store

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("not found")

// OptionStore is a flat name/value table.
type OptionStore interface {
	GetOption(ctx context.Context, name string) (string, error)
	SetOption(ctx context.Context, name, value string) error
	// AddOption stores value only when name is absent and reports whether it did.
	AddOption(ctx context.Context, name, value string) (bool, error)
	DeleteOption(ctx context.Context, name string) error
	DeleteOptionsByPrefix(ctx context.Context, prefix string) (int64, error)
}

// MetaStore holds per-item fields keyed by item id and meta key.
type MetaStore interface {
	GetMeta(ctx context.Context, itemID uint64, key string) (string, error)
	SetMeta(ctx context.Context, itemID uint64, key, value string) error
	DeleteMeta(ctx context.Context, itemID uint64, key string) error
	DeleteMetaKey(ctx context.Context, key string) (int64, error)
	ItemsWithMeta(ctx context.Context, key, value string) ([]uint64, error)
	UpsertMetaBulk(ctx context.Context, itemIDs []uint64, key, value string) error
	DeleteMetaBulk(ctx context.Context, itemIDs []uint64, key string) (int64, error)
}
