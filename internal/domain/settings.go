package domain

import (
	"context"
	"encoding/json"
	"time"
)

// Settings is the page-wide key/value configuration: style tokens,
// feature toggles (literal "true"/"false") and denormalized fields such
// as the enabled-section list (JSON text).
type Settings map[string]string

// Well-known settings keys.
const (
	SettingEnabledSections = "sections"
	SettingPlanTier        = "plan"
)

// Clone returns a deep copy.
func (s Settings) Clone() Settings {
	out := make(Settings, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Bool reads a feature toggle. Only the literal "true" counts as on.
func (s Settings) Bool(key string) bool {
	return s[key] == "true"
}

// SetBool writes a feature toggle as the literal "true"/"false".
func (s Settings) SetBool(key string, on bool) {
	if on {
		s[key] = "true"
	} else {
		s[key] = "false"
	}
}

// EnabledSections decodes the denormalized enabled-section list.
// Returns nil when the setting is absent or malformed.
func (s Settings) EnabledSections() []SectionKey {
	raw := s[SettingEnabledSections]
	if raw == "" {
		return nil
	}
	var keys []SectionKey
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil
	}
	return keys
}

// SetEnabledSections encodes the enabled-section list as JSON text.
func (s Settings) SetEnabledSections(keys []SectionKey) {
	data, err := json.Marshal(keys)
	if err != nil {
		return
	}
	s[SettingEnabledSections] = string(data)
}

// SettingsStore persists page-wide settings with the same upsert and
// last-write-wins semantics as ContentStore.
type SettingsStore interface {
	// GetSettings returns all settings for a page. Read failures are
	// logged and surfaced as an empty result.
	GetSettings(ctx context.Context, pageID string) Settings

	// SaveSettings upserts every key in settings. Idempotent per key;
	// at-least-once across keys.
	SaveSettings(ctx context.Context, pageID string, settings Settings) error

	// SettingsFingerprint returns a cheap change marker, or "" on failure.
	SettingsFingerprint(ctx context.Context, pageID string) string

	// SettingsChangedSince returns keys updated after the given instant.
	SettingsChangedSince(ctx context.Context, pageID string, since time.Time) ([]FieldChange, error)
}
