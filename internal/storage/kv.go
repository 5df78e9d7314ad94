// Package storage implements the key-value persistence contract the expense
// and preferences stores are built on.
package storage

import "context"

// Well-known keys.
const (
	KeyExpenses    = "financial_tracker_expenses"
	KeyPreferences = "financial_tracker_preferences"
	KeyAppVersion  = "financial_tracker_app_version"
)

// KV is a string key-value store. Absence is reported through the found
// result of Get, never as an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	// CompareAndSwap writes value only if the current value equals old, an
	// absent key counting as "". It reports whether the write happened.
	CompareAndSwap(ctx context.Context, key, old, value string) (bool, error)
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context) error
	Close() error
}
