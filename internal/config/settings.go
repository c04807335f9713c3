package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/lang"
	"golang.org/x/text/language"
)

const (
	ProviderYouTube = "youtube"
	ProviderGemini  = "gemini"
	ProviderOpenAI  = "openai"

	DisplayBoth           = "both"
	DisplayTranslatedOnly = "translated-only"

	MinCharsLowerBound = 1
	MinCharsUpperBound = 200
)

// Settings is the viewer-facing preference record. Changes to the
// translation identity fields reset the cache.
type Settings struct {
	Provider          string `json:"provider"`
	Model             string `json:"model"`
	SourceLanguage    string `json:"source_language"`
	TargetLanguage    string `json:"target_language"`
	MinChars          int    `json:"min_chars"`
	PrimaryLanguage   string `json:"primary_language"`
	SecondaryLanguage string `json:"secondary_language"`
	DisplayMode       string `json:"display_mode"`
}

// DefaultSettings returns the settings used before anything was saved.
func DefaultSettings() Settings {
	return Settings{
		Provider:          ProviderYouTube,
		Model:             "openai/gpt-4o-mini",
		SourceLanguage:    lang.Auto,
		TargetLanguage:    "zh-Hant",
		MinChars:          2,
		PrimaryLanguage:   "en",
		SecondaryLanguage: "zh-Hant",
		DisplayMode:       DisplayBoth,
	}
}

// Generative reports whether missing lines are produced by the generation
// provider rather than taken from the secondary track.
func (s Settings) Generative() bool {
	return s.Provider == ProviderGemini || s.Provider == ProviderOpenAI
}

// Sanitize keeps every well-formed field of s and replaces the rest with
// defaults. Strings are trimmed.
func (s Settings) Sanitize() Settings {
	safe := DefaultSettings()

	switch p := strings.ToLower(strings.TrimSpace(s.Provider)); p {
	case ProviderYouTube, ProviderGemini, ProviderOpenAI:
		safe.Provider = p
	}
	if m := strings.TrimSpace(s.Model); m != "" {
		safe.Model = m
	}
	if v := strings.TrimSpace(s.SourceLanguage); v != "" {
		safe.SourceLanguage = v
	}
	if v := strings.TrimSpace(s.TargetLanguage); v != "" {
		safe.TargetLanguage = v
	}
	if s.MinChars >= MinCharsLowerBound && s.MinChars <= MinCharsUpperBound {
		safe.MinChars = s.MinChars
	}
	if v := strings.TrimSpace(s.PrimaryLanguage); v != "" {
		safe.PrimaryLanguage = v
	}
	if v := strings.TrimSpace(s.SecondaryLanguage); v != "" {
		safe.SecondaryLanguage = v
	}
	if s.DisplayMode == DisplayBoth || s.DisplayMode == DisplayTranslatedOnly {
		safe.DisplayMode = s.DisplayMode
	}
	return safe
}

// Validate rejects values Sanitize would have replaced.
func (s Settings) Validate() error {
	switch s.Provider {
	case ProviderYouTube, ProviderGemini, ProviderOpenAI:
	default:
		return validationError("provider", s.Provider)
	}
	if strings.TrimSpace(s.Model) == "" {
		return validationError("model", s.Model)
	}
	if s.SourceLanguage != lang.Auto {
		if _, err := language.Parse(s.SourceLanguage); err != nil {
			return validationError("source_language", s.SourceLanguage)
		}
	}
	for field, value := range map[string]string{
		"target_language":    s.TargetLanguage,
		"primary_language":   s.PrimaryLanguage,
		"secondary_language": s.SecondaryLanguage,
	} {
		if _, err := language.Parse(value); err != nil {
			return validationError(field, value)
		}
	}
	if s.MinChars < MinCharsLowerBound || s.MinChars > MinCharsUpperBound {
		return validationError("min_chars", s.MinChars)
	}
	if s.DisplayMode != DisplayBoth && s.DisplayMode != DisplayTranslatedOnly {
		return validationError("display_mode", s.DisplayMode)
	}
	return nil
}

func validationError(field string, value any) error {
	return apperr.New(apperr.KindValidation, fmt.Sprintf("invalid %s", field)).WithContext("value", value)
}

// Field names a Settings field in a diff.
type Field string

const (
	FieldProvider          Field = "provider"
	FieldModel             Field = "model"
	FieldSourceLanguage    Field = "source_language"
	FieldTargetLanguage    Field = "target_language"
	FieldMinChars          Field = "min_chars"
	FieldPrimaryLanguage   Field = "primary_language"
	FieldSecondaryLanguage Field = "secondary_language"
	FieldDisplayMode       Field = "display_mode"
)

// Diff lists the fields that differ between prev and next, in declaration order.
func Diff(prev, next Settings) []Field {
	var ret []Field
	add := func(changed bool, f Field) {
		if changed {
			ret = append(ret, f)
		}
	}
	add(prev.Provider != next.Provider, FieldProvider)
	add(prev.Model != next.Model, FieldModel)
	add(prev.SourceLanguage != next.SourceLanguage, FieldSourceLanguage)
	add(prev.TargetLanguage != next.TargetLanguage, FieldTargetLanguage)
	add(prev.MinChars != next.MinChars, FieldMinChars)
	add(prev.PrimaryLanguage != next.PrimaryLanguage, FieldPrimaryLanguage)
	add(prev.SecondaryLanguage != next.SecondaryLanguage, FieldSecondaryLanguage)
	add(prev.DisplayMode != next.DisplayMode, FieldDisplayMode)
	return ret
}

// SettingsChange is the event delivered to the session when settings are saved.
type SettingsChange struct {
	Previous Settings
	Next     Settings
}

func (c SettingsChange) Fields() []Field {
	return Diff(c.Previous, c.Next)
}

func (c SettingsChange) has(fields ...Field) bool {
	for _, changed := range c.Fields() {
		for _, f := range fields {
			if changed == f {
				return true
			}
		}
	}
	return false
}

// RequiresCacheReset is true when the translation identity changed.
func (c SettingsChange) RequiresCacheReset() bool {
	return c.has(FieldProvider, FieldModel, FieldSourceLanguage, FieldTargetLanguage)
}

// ProviderChanged is true when cached lines came from a different producer.
func (c SettingsChange) ProviderChanged() bool {
	return c.has(FieldProvider)
}

// RequiresTrackReload is true when a different caption track is wanted.
func (c SettingsChange) RequiresTrackReload() bool {
	return c.has(FieldPrimaryLanguage, FieldSecondaryLanguage)
}

// LoadSettingsFile reads and sanitizes a settings file.
func LoadSettingsFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}
	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return Settings{}, fmt.Errorf("invalid settings file: %w", err)
	}
	return settings.Sanitize(), nil
}

// WriteSettingsFile validates settings and replaces the file atomically.
func WriteSettingsFile(path string, settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	content, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	content = append(content, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, content, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// SettingsStore keeps the current settings in memory backed by a JSON file.
type SettingsStore struct {
	path string

	mu      sync.RWMutex
	current Settings
}

// NewSettingsStore loads path if it exists, otherwise starts from initial.
func NewSettingsStore(path string, initial Settings) (*SettingsStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, apperr.New(apperr.KindConfig, "settings file path is required")
	}

	current := initial.Sanitize()
	loaded, err := LoadSettingsFile(path)
	switch {
	case err == nil:
		current = loaded
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	return &SettingsStore{
		path:    path,
		current: current,
	}, nil
}

// Path is the settings file location.
func (s *SettingsStore) Path() string {
	return s.path
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update validates and persists next, returning the change relative to the
// previous settings.
func (s *SettingsStore) Update(next Settings) (SettingsChange, error) {
	if err := next.Validate(); err != nil {
		return SettingsChange{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := WriteSettingsFile(s.path, next); err != nil {
		return SettingsChange{}, err
	}
	change := SettingsChange{Previous: s.current, Next: next}
	s.current = next
	return change, nil
}
