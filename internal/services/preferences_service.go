package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"expensetracker/internal/core"
	"expensetracker/internal/log"
	"expensetracker/internal/storage"
)

// PreferencesService reads and writes the single preferences record.
type PreferencesService struct {
	kv     storage.KV
	logger *log.Logger
	mu     sync.Mutex
}

func NewPreferencesService(kv storage.KV, logger *log.Logger) *PreferencesService {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	return &PreferencesService{
		kv:     kv,
		logger: logger.WithComponent(log.ComponentPreferences),
	}
}

// Get returns the stored preferences merged over the defaults. Missing,
// unreadable or invalid records yield the defaults.
func (s *PreferencesService) Get(ctx context.Context) core.Preferences {
	raw, found, err := s.kv.Get(ctx, storage.KeyPreferences)
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to read preferences, using defaults",
			log.FieldOperation, log.OpRead,
			log.FieldError, err)
		return core.DefaultPreferences()
	}
	if !found {
		return core.DefaultPreferences()
	}

	prefs := core.DefaultPreferences()
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		s.logger.WarnContext(ctx, "Stored preferences are malformed, using defaults",
			log.FieldOperation, log.OpRead,
			log.FieldError, err)
		return core.DefaultPreferences()
	}
	if err := prefs.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Stored preferences are invalid, using defaults",
			log.FieldOperation, log.OpRead,
			log.FieldError, err)
		return core.DefaultPreferences()
	}
	return prefs
}

// Update merges patch into the current preferences and persists the result.
func (s *PreferencesService) Update(ctx context.Context, patch core.PreferencesPatch) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := patch.Apply(s.Get(ctx))
	if err := next.Validate(); err != nil {
		return core.Preferences{}, err
	}
	if err := s.save(ctx, next); err != nil {
		return core.Preferences{}, err
	}
	s.logger.InfoContext(ctx, "Preferences updated",
		log.FieldOperation, log.OpUpdate,
		"currency", next.Currency,
		"theme", next.Theme,
		"backup", next.Backup)
	return next, nil
}

// Reset restores and persists the defaults.
func (s *PreferencesService) Reset(ctx context.Context) (core.Preferences, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefs := core.DefaultPreferences()
	if err := s.save(ctx, prefs); err != nil {
		return core.Preferences{}, err
	}
	s.logger.InfoContext(ctx, "Preferences reset", log.FieldOperation, log.OpDelete)
	return prefs, nil
}

func (s *PreferencesService) save(ctx context.Context, p core.Preferences) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}
	if err := s.kv.Set(ctx, storage.KeyPreferences, string(body)); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}
