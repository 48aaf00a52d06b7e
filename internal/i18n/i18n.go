// Package i18n holds the owner-facing message catalog.
//
// Catalogs are flat YAML maps embedded at build time. Placeholders use
// {name} and are filled from the vars passed to T.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"
)

const (
	KeyPostWithoutText = "post_without_text"
	KeyReminder        = "reminder"
	KeyReminderSoon    = "reminder_soon"
	KeyPostFailed      = "post_failed"
)

//go:embed locales/*.yaml
var localesFS embed.FS

type Registry struct {
	def      string
	catalogs map[string]map[string]string
}

// Load reads the embedded catalogs. def is used when a language or key is missing.
func Load(def string) (*Registry, error) {
	entries, err := localesFS.ReadDir("locales")
	if err != nil {
		return nil, err
	}
	r := &Registry{def: normalize(def), catalogs: map[string]map[string]string{}}
	for _, e := range entries {
		b, err := localesFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, err
		}
		var m map[string]string
		if err := yaml.Unmarshal(b, &m); err != nil {
			return nil, fmt.Errorf("locale %s: %w", e.Name(), err)
		}
		r.catalogs[strings.TrimSuffix(e.Name(), path.Ext(e.Name()))] = m
	}
	if r.def == "" {
		r.def = "en"
	}
	if _, ok := r.catalogs[r.def]; !ok {
		return nil, fmt.Errorf("default language %q has no catalog", r.def)
	}
	return r, nil
}

// MustLoad is Load for package-level wiring; it panics on a broken build.
func MustLoad(def string) *Registry {
	r, err := Load(def)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Languages() []string {
	out := make([]string, 0, len(r.catalogs))
	for k := range r.catalogs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// T renders key in lang, falling back to the default language, then to the key itself.
func (r *Registry) T(lang, key string, vars map[string]any) string {
	tmpl, ok := r.lookup(normalize(lang), key)
	if !ok {
		tmpl, ok = r.lookup(r.def, key)
	}
	if !ok {
		return key
	}
	if len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func (r *Registry) lookup(lang, key string) (string, bool) {
	m, ok := r.catalogs[lang]
	if !ok {
		return "", false
	}
	s, ok := m[key]
	return s, ok && s != ""
}

// normalize maps "ru-RU" and "RU" to "ru".
func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	return lang
}
