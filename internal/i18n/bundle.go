// README: Language-keyed text bundle loaded from YAML with default-language fallback.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var embedded embed.FS

// Params are substituted into {name} placeholders.
type Params map[string]any

// Bundle resolves localized strings. Safe for concurrent reads after construction.
type Bundle struct {
	def   string
	texts map[string]map[string]string
}

var aliases = map[string]string{"kz": "kk"}

// Load reads the embedded bundles and, when dir is non-empty, overlays every <lang>.yaml in it.
func Load(defaultLang, dir string) (*Bundle, error) {
	b := &Bundle{def: normalize(defaultLang), texts: map[string]map[string]string{}}
	if err := b.loadFS(embedded, "locales"); err != nil {
		return nil, err
	}
	if dir != "" {
		if err := b.loadFS(os.DirFS(dir), "."); err != nil {
			return nil, err
		}
	}
	if _, ok := b.texts[b.def]; !ok {
		return nil, fmt.Errorf("i18n: no bundle for default language %q", b.def)
	}
	return b, nil
}

// MustLoadEmbedded is Load without an overlay directory. It panics on malformed embedded data.
func MustLoadEmbedded(defaultLang string) *Bundle {
	b, err := Load(defaultLang, "")
	if err != nil {
		panic(err)
	}
	return b
}

func (b *Bundle) loadFS(fsys fs.FS, root string) error {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return fmt.Errorf("i18n: read %s: %w", root, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".yaml" {
			continue
		}
		data, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return fmt.Errorf("i18n: read %s: %w", e.Name(), err)
		}
		var kv map[string]string
		if err := yaml.Unmarshal(data, &kv); err != nil {
			return fmt.Errorf("i18n: parse %s: %w", e.Name(), err)
		}
		lang := normalize(strings.TrimSuffix(e.Name(), ".yaml"))
		dst, ok := b.texts[lang]
		if !ok {
			dst = map[string]string{}
			b.texts[lang] = dst
		}
		for k, v := range kv {
			dst[k] = v
		}
	}
	return nil
}

// Resolve returns the text for key in lang, then in the default language, then "[key]".
func (b *Bundle) Resolve(lang, key string, params Params) string {
	text, ok := b.lookup(normalize(lang), key)
	if !ok {
		text, ok = b.lookup(b.def, key)
	}
	if !ok {
		return "[" + key + "]"
	}
	return format(text, params)
}

func (b *Bundle) lookup(lang, key string) (string, bool) {
	m, ok := b.texts[lang]
	if !ok {
		return "", false
	}
	v, ok := m[key]
	return v, ok
}

// Has reports whether lang is a loaded language.
func (b *Bundle) Has(lang string) bool {
	_, ok := b.texts[normalize(lang)]
	return ok
}

func (b *Bundle) Default() string { return b.def }

// Languages lists loaded language codes in sorted order.
func (b *Bundle) Languages() []string {
	out := make([]string, 0, len(b.texts))
	for l := range b.texts {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Keys lists the keys of one language. Used to check bundle completeness.
func (b *Bundle) Keys(lang string) []string {
	m := b.texts[normalize(lang)]
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func normalize(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if a, ok := aliases[lang]; ok {
		return a
	}
	return lang
}

// format replaces {name} placeholders. Unknown placeholders stay as written.
func format(text string, params Params) string {
	if len(params) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(params)*2)
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", fmt.Sprint(v))
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
