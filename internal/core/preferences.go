package core

import (
	"errors"
	"fmt"
	"strings"
)

type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

const (
	DefaultCurrency = "USD"
	DefaultLanguage = "en"
)

var ErrInvalidPreferences = errors.New("invalid preferences")

// Preferences is the single per-install settings record.
type Preferences struct {
	Currency      string `json:"currency" yaml:"currency"`
	Language      string `json:"language" yaml:"language"`
	Theme         Theme  `json:"theme" yaml:"theme"`
	Notifications bool   `json:"notifications" yaml:"notifications"`
	Backup        bool   `json:"backup" yaml:"backup"`
}

// PreferencesPatch carries a partial preferences update.
type PreferencesPatch struct {
	Currency      *string `json:"currency,omitempty"`
	Language      *string `json:"language,omitempty"`
	Theme         *Theme  `json:"theme,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	Backup        *bool   `json:"backup,omitempty"`
}

func DefaultPreferences() Preferences {
	return Preferences{
		Currency:      DefaultCurrency,
		Language:      DefaultLanguage,
		Theme:         ThemeSystem,
		Notifications: true,
		Backup:        true,
	}
}

func (t Theme) IsValid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	default:
		return false
	}
}

func (p Preferences) Validate() error {
	if len(p.Currency) != 3 || strings.ToUpper(p.Currency) != p.Currency {
		return fmt.Errorf("%w: currency must be a 3-letter ISO code, got %q", ErrInvalidPreferences, p.Currency)
	}
	if strings.TrimSpace(p.Language) == "" {
		return fmt.Errorf("%w: empty language", ErrInvalidPreferences)
	}
	if !p.Theme.IsValid() {
		return fmt.Errorf("%w: unknown theme %q", ErrInvalidPreferences, p.Theme)
	}
	return nil
}

func (pp PreferencesPatch) Apply(p Preferences) Preferences {
	if pp.Currency != nil {
		p.Currency = strings.ToUpper(strings.TrimSpace(*pp.Currency))
	}
	if pp.Language != nil {
		p.Language = strings.TrimSpace(*pp.Language)
	}
	if pp.Theme != nil {
		p.Theme = *pp.Theme
	}
	if pp.Notifications != nil {
		p.Notifications = *pp.Notifications
	}
	if pp.Backup != nil {
		p.Backup = *pp.Backup
	}
	return p
}
