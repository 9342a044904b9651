// Package config loads the three YAML documents that configure intentd:
// app settings, allow/block rules, and declarative bundle definitions.
// Configuration is loaded once at startup and read-only afterwards;
// there is deliberately no hot reload.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	appConfigFile    = "config.yaml"
	rulesConfigFile  = "rules.yaml"
	bundleConfigFile = "bundles.yaml"
)

// AppConfig holds timing, enforcement and provider knobs.
type AppConfig struct {
	DefaultDurationMinutes  int    `yaml:"default_duration_minutes"`
	WarningBeforeEndMinutes int    `yaml:"warning_before_end_minutes"`
	UnlimitedCheckinMinutes int    `yaml:"unlimited_checkin_minutes"`
	BreakGlassPhrase        string `yaml:"break_glass_phrase"`
	FocusReassertDelayMs    int    `yaml:"focus_reassert_delay_ms"`
	CompanionPort           int    `yaml:"companion_port"`
	LLMProvider             string `yaml:"llm_provider"`
	LLMModel                string `yaml:"llm_model"`
	LLMAPIKeyEnv            string `yaml:"llm_api_key_env"`
	Theme                   string `yaml:"theme"`
}

// WarningWindow returns the warning threshold as a duration.
func (c AppConfig) WarningWindow() time.Duration {
	return time.Duration(c.WarningBeforeEndMinutes) * time.Minute
}

// CheckinInterval returns the unlimited-intention checkin interval.
func (c AppConfig) CheckinInterval() time.Duration {
	return time.Duration(c.UnlimitedCheckinMinutes) * time.Minute
}

// IntentionRule allows extra apps/URLs when its keyword trigger
// matches the active intention's text.
type IntentionRule struct {
	Pattern   string   `yaml:"pattern"` // |-delimited keywords
	AllowApps []string `yaml:"allow_apps"`
	AllowURLs []string `yaml:"allow_urls"`
}

// RulesConfig holds the static always-lists and keyword-triggered rules.
type RulesConfig struct {
	AlwaysAllowedApps []string        `yaml:"always_allowed_apps"`
	AlwaysAllowedURLs []string        `yaml:"always_allowed_urls"`
	AlwaysBlockedApps []string        `yaml:"always_blocked_apps"`
	AlwaysBlockedURLs []string        `yaml:"always_blocked_urls"`
	IntentionRules    []IntentionRule `yaml:"intention_rules"`
}

// BundleDef is a declarative bundle definition from bundles.yaml.
type BundleDef struct {
	Name         string   `yaml:"name"`
	Apps         []AppRef `yaml:"apps"`
	URLPatterns  []string `yaml:"url_patterns"`
	AllowAllApps bool     `yaml:"allow_all_apps"`
	AllowAllURLs bool     `yaml:"allow_all_urls"`
}

// AppRef names an app inside a bundle definition.
type AppRef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// BundleConfig holds the declarative bundle definitions synced into
// storage on load (additive-only).
type BundleConfig struct {
	Bundles []BundleDef `yaml:"bundles"`
}

// Config is the process-wide configuration, immutable after Load.
type Config struct {
	App     AppConfig
	Rules   RulesConfig
	Bundles BundleConfig
}

// DefaultAppConfig returns the built-in app settings.
func DefaultAppConfig() AppConfig {
	return AppConfig{
		DefaultDurationMinutes:  25,
		WarningBeforeEndMinutes: 5,
		UnlimitedCheckinMinutes: 30,
		BreakGlassPhrase:        "I am choosing distraction",
		FocusReassertDelayMs:    400,
		CompanionPort:           42007,
		LLMProvider:             "",
		LLMModel:                "",
		LLMAPIKeyEnv:            "INTENTD_LLM_API_KEY",
		Theme:                   "system",
	}
}

// DefaultRulesConfig returns the built-in always-lists.
func DefaultRulesConfig() RulesConfig {
	return RulesConfig{
		AlwaysAllowedApps: []string{"intentd"},
		AlwaysAllowedURLs: nil,
		AlwaysBlockedApps: nil,
		AlwaysBlockedURLs: nil,
		IntentionRules:    nil,
	}
}

// DefaultBundleConfig returns the built-in bundle definitions.
// The reserved Admin bundle is materialized by the store sync, not here.
func DefaultBundleConfig() BundleConfig {
	return BundleConfig{}
}

// DefaultDir returns the preferred config directory.
func DefaultDir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(base, "intentd")
}

// LegacyDir returns the pre-XDG config location still honored on load.
func LegacyDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".intentd")
}

// Load reads all three documents from dir, falling back to legacyDir
// per file. A missing file triggers creation of a documented default
// in dir and use of the in-memory default. A malformed file falls back
// to the default with a logged warning; configuration errors are never
// fatal.
func Load(dir, legacyDir string, logger *zap.Logger) Config {
	cfg := Config{
		App:     DefaultAppConfig(),
		Rules:   DefaultRulesConfig(),
		Bundles: DefaultBundleConfig(),
	}

	loadDoc(dir, legacyDir, appConfigFile, &cfg.App, defaultAppYAML, logger)
	loadDoc(dir, legacyDir, rulesConfigFile, &cfg.Rules, defaultRulesYAML, logger)
	loadDoc(dir, legacyDir, bundleConfigFile, &cfg.Bundles, defaultBundlesYAML, logger)

	if cfg.App.WarningBeforeEndMinutes <= 0 {
		cfg.App.WarningBeforeEndMinutes = DefaultAppConfig().WarningBeforeEndMinutes
	}
	if cfg.App.UnlimitedCheckinMinutes <= 0 {
		cfg.App.UnlimitedCheckinMinutes = DefaultAppConfig().UnlimitedCheckinMinutes
	}
	if cfg.App.BreakGlassPhrase == "" {
		cfg.App.BreakGlassPhrase = DefaultAppConfig().BreakGlassPhrase
	}
	if cfg.App.CompanionPort <= 0 {
		cfg.App.CompanionPort = DefaultAppConfig().CompanionPort
	}

	return cfg
}

// loadDoc decodes one document into out, preferring dir over legacyDir.
// out already holds the defaults; a parse failure restores nothing and
// leaves the defaults untouched because decoding happens into a copy.
func loadDoc[T any](dir, legacyDir, name string, out *T, defaultDoc string, logger *zap.Logger) {
	paths := []string{}
	if dir != "" {
		paths = append(paths, filepath.Join(dir, name))
	}
	if legacyDir != "" {
		paths = append(paths, filepath.Join(legacyDir, name))
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		decoded := *out
		if err := yaml.Unmarshal(data, &decoded); err != nil {
			logger.Warn("malformed config document, using defaults",
				zap.String("path", path),
				zap.Error(err))
			return
		}
		*out = decoded
		return
	}

	// No file anywhere: write a documented default to the preferred dir.
	if dir != "" {
		if err := writeDefault(filepath.Join(dir, name), defaultDoc); err != nil {
			logger.Warn("could not write default config",
				zap.String("file", name),
				zap.Error(err))
		}
	}
}

func writeDefault(path, doc string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, []byte(doc), 0600)
}
