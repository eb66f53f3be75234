// Package i18n renders user-facing reasons for invite code failures in the
// caller's language. Translations are YAML files embedded from locales/.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog holds every loaded translation. It is safe for concurrent use.
type Catalog struct {
	bundle *i18n.Bundle
}

// NewCatalog loads the embedded locale files with English as the fallback.
func NewCatalog() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile(path.Join("locales", f.Name()))
		if err != nil {
			return nil, fmt.Errorf("read locale %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("parse locale %s: %w", f.Name(), err)
		}
	}
	return &Catalog{bundle: bundle}, nil
}

// T translates messageID for the given Accept-Language values. Unknown IDs
// come back unchanged.
func (c *Catalog) T(messageID string, langs ...string) string {
	loc := i18n.NewLocalizer(c.bundle, langs...)
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil {
		return messageID
	}
	return msg
}
