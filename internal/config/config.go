// Package config loads the service's TOML configuration file: the language
// recipe table, admission limits, and the isolation sandbox profile, per
// the service's run.* key tree. Uses the BurntSushi/toml decoding
// idiom used elsewhere in the example pack for structured service config.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/kkloberdanz/judgerun/internal/isolation"
	"github.com/kkloberdanz/judgerun/internal/model"
)

// Config is the top-level shape of judgerund.toml.
type Config struct {
	MaxProgramLength int                              `toml:"max_program_length"`
	DefaultLanguage  string                           `toml:"default_language"`
	Languages        map[string]model.LanguageRecipe  `toml:"languages"`
	Isolation        isolation.IsolationConfig        `toml:"isolation"`
	ListenAddr       string                           `toml:"listen_addr"`
	CAPath           string                           `toml:"ca_path"`
	CertPath         string                           `toml:"cert_path"`
	KeyPath          string                           `toml:"key_path"`
}

// Default returns a Config with the non-language, non-TLS fields populated
// from defaults; callers still need to supply languages and TLS material.
func Default() Config {
	return Config{
		MaxProgramLength: 64 * 1024,
		Languages:        map[string]model.LanguageRecipe{},
		Isolation: isolation.IsolationConfig{
			Limits: isolation.DefaultLimitConfig(),
		},
		ListenAddr: ":50051",
	}
}

// Load reads and validates a TOML config file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces config-level invariants: a known default language and a
// sane isolation profile.
func (c Config) Validate() error {
	if len(c.Languages) == 0 {
		return fmt.Errorf("config: no languages configured")
	}
	if _, ok := c.Languages[c.DefaultLanguage]; c.DefaultLanguage != "" && !ok {
		return fmt.Errorf("config: default_language %q is not in languages", c.DefaultLanguage)
	}
	for key, recipe := range c.Languages {
		r := recipe
		r.Key = key
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return c.Isolation.Validate()
}

// Recipe resolves a language key to its recipe, falling back to
// DefaultLanguage when key is empty.
func (c Config) Recipe(key string) (model.LanguageRecipe, error) {
	if key == "" {
		key = c.DefaultLanguage
	}
	recipe, ok := c.Languages[key]
	if !ok {
		return model.LanguageRecipe{}, fmt.Errorf("unknown language %q", key)
	}
	return recipe, nil
}
