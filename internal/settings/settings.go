// Package settings persists the operator's dashboard preferences.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"agrispy.dev/agrispy/internal/storage"
)

// StorageKey is the storage entry holding the JSON preferences.
const StorageKey = "agrispy_settings"

// Language is a supported interface language.
type Language string

const (
	English Language = "english"
	Bengali Language = "bengali"
	Hindi   Language = "hindi"
)

// ErrUnknownLanguage is returned for languages outside Languages().
var ErrUnknownLanguage = errors.New("settings: unknown language")

// Languages lists the supported languages.
func Languages() []Language {
	return []Language{English, Bengali, Hindi}
}

// ParseLanguage accepts a language name in any case.
func ParseLanguage(s string) (Language, error) {
	l := Language(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Languages() {
		if l == known {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLanguage, s)
}

// Notifications are the alert channels the operator opted into.
type Notifications struct {
	Email bool `json:"email"`
	Push  bool `json:"push"`
	SMS   bool `json:"sms"`
}

// Preferences are the persisted settings.
type Preferences struct {
	Language      Language      `json:"language"`
	Notifications Notifications `json:"notifications"`
	DarkMode      bool          `json:"darkMode"`
}

// Defaults returns English, email and push on, SMS off, light mode.
func Defaults() Preferences {
	return Preferences{
		Language:      English,
		Notifications: Notifications{Email: true, Push: true},
	}
}

// Store loads and saves Preferences.
type Store struct {
	backend storage.Store
	logger  *slog.Logger
}

// NewStore returns a Store over backend.
func NewStore(backend storage.Store, logger *slog.Logger) (*Store, error) {
	if backend == nil {
		return nil, errors.New("storage backend cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Store{backend: backend, logger: logger}, nil
}

// Load returns the saved preferences, or Defaults when nothing usable is
// stored.
func (s *Store) Load(ctx context.Context) Preferences {
	raw, err := s.backend.Get(ctx, StorageKey)
	if errors.Is(err, storage.ErrNotFound) {
		return Defaults()
	}
	if err != nil {
		s.logger.Error("failed to read preferences", "error", err)
		return Defaults()
	}

	var p Preferences
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Warn("ignoring malformed preferences", "error", err)
		return Defaults()
	}
	if _, err := ParseLanguage(string(p.Language)); err != nil {
		s.logger.Warn("ignoring preferences with unknown language", "language", p.Language)
		return Defaults()
	}
	return p
}

// Save validates and persists p.
func (s *Store) Save(ctx context.Context, p Preferences) error {
	lang, err := ParseLanguage(string(p.Language))
	if err != nil {
		return err
	}
	p.Language = lang

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := s.backend.Set(ctx, StorageKey, string(data)); err != nil {
		return fmt.Errorf("settings: persist: %w", err)
	}

	s.logger.Info("preferences saved", "language", p.Language, "dark_mode", p.DarkMode)
	return nil
}
