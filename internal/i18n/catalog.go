// Package i18n resolves dotted message keys against per-language YAML catalogs.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/m3rciful/taskly/internal/domain"
)

//go:embed locales/*.yaml
var localesFS embed.FS

// Params are placeholder values for interpolation.
type Params map[string]any

// Catalog holds flattened messages per language.
type Catalog struct {
	messages map[domain.Language]map[string]string
}

// Load parses every embedded catalog.
func Load() (*Catalog, error) {
	entries, err := localesFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("i18n: read locales: %w", err)
	}
	c := &Catalog{messages: make(map[domain.Language]map[string]string)}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}
		lang := domain.Language(strings.TrimSuffix(name, ".yaml"))
		data, err := localesFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("i18n: read %s: %w", name, err)
		}
		msgs, err := parse(data)
		if err != nil {
			return nil, fmt.Errorf("i18n: parse %s: %w", name, err)
		}
		c.messages[lang] = msgs
	}
	return c, nil
}

// MustLoad is Load that panics on error. The catalogs are compiled in, so a
// failure is a build defect.
func MustLoad() *Catalog {
	c, err := Load()
	if err != nil {
		panic(err)
	}
	return c
}

func parse(data []byte) (map[string]string, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	flatten("", tree, out)
	return out, nil
}

func flatten(prefix string, node map[string]any, out map[string]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch x := v.(type) {
		case map[string]any:
			flatten(key, x, out)
		case string:
			out[key] = x
		case nil:
		default:
			out[key] = fmt.Sprint(x)
		}
	}
}

// Languages lists the loaded languages in sorted order.
func (c *Catalog) Languages() []domain.Language {
	out := make([]domain.Language, 0, len(c.messages))
	for l := range c.messages {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Keys lists the keys of one language in sorted order.
func (c *Catalog) Keys(lang domain.Language) []string {
	msgs := c.messages[lang]
	out := make([]string, 0, len(msgs))
	for k := range msgs {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the raw message for key in lang.
func (c *Catalog) Lookup(lang domain.Language, key string) (string, bool) {
	msg, ok := c.messages[lang][key]
	if !ok || msg == "" {
		return "", false
	}
	return msg, true
}

// Text resolves key in lang and interpolates params. Unknown keys yield the key itself.
func (c *Catalog) Text(lang domain.Language, key string, params Params) string {
	msg, ok := c.Lookup(lang, key)
	if !ok {
		return key
	}
	return Interpolate(msg, params)
}

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Interpolate replaces {{name}} with params["name"]. Placeholders without a value stay as written.
func Interpolate(text string, params Params) string {
	if len(params) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		if v, ok := params[name]; ok && v != nil {
			return fmt.Sprint(v)
		}
		return m
	})
}
