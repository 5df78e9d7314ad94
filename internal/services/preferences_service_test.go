package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"expensetracker/internal/core"
	"expensetracker/internal/storage"
)

func TestPreferencesService(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults when absent", func(t *testing.T) {
		svc := NewPreferencesService(newFlakyKV(), nil)
		assert.Equal(t, core.DefaultPreferences(), svc.Get(ctx))
	})

	t.Run("defaults on read failure", func(t *testing.T) {
		kv := newFlakyKV()
		kv.failGet = errors.New("io error")
		svc := NewPreferencesService(kv, nil)
		assert.Equal(t, core.DefaultPreferences(), svc.Get(ctx))
	})

	t.Run("defaults on malformed record", func(t *testing.T) {
		kv := newFlakyKV()
		require.NoError(t, kv.Set(ctx, storage.KeyPreferences, `{"currency":`))
		svc := NewPreferencesService(kv, nil)
		assert.Equal(t, core.DefaultPreferences(), svc.Get(ctx))
	})

	t.Run("partial record merges over defaults", func(t *testing.T) {
		kv := newFlakyKV()
		require.NoError(t, kv.Set(ctx, storage.KeyPreferences, `{"currency":"EUR"}`))
		svc := NewPreferencesService(kv, nil)

		got := svc.Get(ctx)
		assert.Equal(t, "EUR", got.Currency)
		assert.Equal(t, core.ThemeSystem, got.Theme)
	})

	t.Run("update and reset", func(t *testing.T) {
		kv := newFlakyKV()
		svc := NewPreferencesService(kv, nil)

		currency := "gbp"
		theme := core.ThemeDark
		backup := false
		got, err := svc.Update(ctx, core.PreferencesPatch{Currency: &currency, Theme: &theme, Backup: &backup})
		require.NoError(t, err)
		assert.Equal(t, "GBP", got.Currency)
		assert.Equal(t, core.ThemeDark, got.Theme)
		assert.False(t, got.Backup)
		assert.Equal(t, got, svc.Get(ctx))

		reset, err := svc.Reset(ctx)
		require.NoError(t, err)
		assert.Equal(t, core.DefaultPreferences(), reset)
		assert.Equal(t, core.DefaultPreferences(), svc.Get(ctx))
	})

	t.Run("invalid update is rejected", func(t *testing.T) {
		kv := newFlakyKV()
		svc := NewPreferencesService(kv, nil)
		theme := core.Theme("neon")

		_, err := svc.Update(ctx, core.PreferencesPatch{Theme: &theme})

		assert.ErrorIs(t, err, core.ErrInvalidPreferences)
		assert.Zero(t, kv.setCalls)
	})

	t.Run("write failure", func(t *testing.T) {
		kv := newFlakyKV()
		kv.failSet = errors.New("disk full")
		svc := NewPreferencesService(kv, nil)

		_, err := svc.Reset(ctx)
		assert.Error(t, err)
	})
}
