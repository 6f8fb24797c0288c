// Package persona holds the read-only conversational configuration shared by
// every session: the persona system prompt, the per-language instruction
// suffixes, and the narration text for each timeline section.
package persona

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vango-go/cortes-live/pkg/core/types"
)

// SectionLanding is the key narrated when the landing page is shown.
const SectionLanding = "landing"

// Catalog is safe for concurrent reads. It is never mutated after load.
type Catalog struct {
	persona   string
	suffixes  map[types.Language]string
	narration map[types.Language]map[string]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c := &Catalog{
		persona:   Cortes,
		suffixes:  make(map[types.Language]string, len(defaultSuffixes)),
		narration: make(map[types.Language]map[string]string, len(defaultNarration)),
	}
	for k, v := range defaultSuffixes {
		c.suffixes[k] = v
	}
	for lang, sections := range defaultNarration {
		m := make(map[string]string, len(sections))
		for k, v := range sections {
			m[k] = v
		}
		c.narration[lang] = m
	}
	return c
}

// Persona returns the base persona text.
func (c *Catalog) Persona() string { return c.persona }

// Suffix returns the language instruction suffix for lang; "" for the
// base language and for unknown languages.
func (c *Catalog) Suffix(lang types.Language) string {
	return c.suffixes[lang]
}

// SystemPrompt returns the persona followed by exactly one language suffix.
func (c *Catalog) SystemPrompt(lang types.Language) string {
	return c.persona + c.Suffix(lang)
}

// Narration returns the narration text for section key in lang, falling
// back to the default language.
func (c *Catalog) Narration(lang types.Language, key string) (string, bool) {
	if text, ok := c.narration[lang][key]; ok && text != "" {
		return text, true
	}
	text, ok := c.narration[types.DefaultLanguage][key]
	return text, ok && text != ""
}

// Sections returns the narrated section keys in timeline order: the landing
// section first, then decades ascending.
func (c *Catalog) Sections() []string {
	keys := make([]string, 0, len(c.narration[types.DefaultLanguage]))
	for k := range c.narration[types.DefaultLanguage] {
		if k != SectionLanding {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := c.narration[types.DefaultLanguage][SectionLanding]; ok {
		keys = append([]string{SectionLanding}, keys...)
	}
	return keys
}

// fileCatalog is the on-disk override format.
//
//	persona: |
//	  You are ...
//	suffixes:
//	  es: "..."
//	narration:
//	  en:
//	    landing: "..."
type fileCatalog struct {
	Persona   string                       `yaml:"persona"`
	Suffixes  map[string]string            `yaml:"suffixes"`
	Narration map[string]map[string]string `yaml:"narration"`
}

// LoadFile loads a YAML override on top of the built-in catalog. Fields the
// file leaves empty keep their default.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read persona file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML override on top of the built-in catalog.
func Parse(data []byte) (*Catalog, error) {
	var fc fileCatalog
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse persona file: %w", err)
	}
	c := Default()
	if p := strings.TrimSpace(fc.Persona); p != "" {
		c.persona = p
	}
	for raw, suffix := range fc.Suffixes {
		lang, ok := types.ParseLanguage(raw)
		if !ok {
			return nil, fmt.Errorf("persona file: unsupported language %q", raw)
		}
		if lang.IsDefault() && suffix != "" {
			return nil, fmt.Errorf("persona file: %s is the base language and cannot carry a suffix", lang)
		}
		c.suffixes[lang] = suffix
	}
	for raw, sections := range fc.Narration {
		lang, ok := types.ParseLanguage(raw)
		if !ok {
			return nil, fmt.Errorf("persona file: unsupported language %q", raw)
		}
		if c.narration[lang] == nil {
			c.narration[lang] = make(map[string]string, len(sections))
		}
		for k, v := range sections {
			c.narration[lang][k] = v
		}
	}
	return c, nil
}
