// Package catalog holds the fixed set of recruitment domains applicants can
// choose from and resolves the spellings clients send back to the canonical
// display name.
package catalog

import (
	"strings"
	"unicode"
)

// DefaultDomains is the catalog shipped with the service, tech domains first.
var DefaultDomains = []string{
	"Web Dev",
	"App Dev",
	"AI/ML",
	"Systems Dev",
	"Blockchain",
	"Game Dev",
	"Cloud",
	"Cybersecurity",
	"Competitive Programming",
	"UI/UX",
	"Marketing",
	"Social Media",
	"Sponsorship",
	"Broadcasting",
	"Administration",
}

// Catalog resolves domain names case-insensitively. The separators '-', '_',
// '/' and space are interchangeable, so slug forms such as "AI-ML" or
// "web_dev" resolve to "AI/ML" and "Web Dev". Any other character must match.
type Catalog struct {
	names []string
	byKey map[string]string
}

// New builds a catalog from canonical names plus extra aliases. Aliases whose
// target is not a catalog name are ignored.
func New(names []string, aliases map[string]string) *Catalog {
	c := &Catalog{byKey: make(map[string]string, len(names)+len(aliases))}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := c.byKey[key(name)]; dup {
			continue
		}
		c.names = append(c.names, name)
		c.byKey[key(name)] = name
	}
	for alias, target := range aliases {
		canonical, ok := c.byKey[key(target)]
		if !ok {
			continue
		}
		if k := key(alias); k != "" {
			c.byKey[k] = canonical
		}
	}
	return c
}

// Default returns the built-in catalog without extra aliases.
func Default() *Catalog {
	return New(DefaultDomains, nil)
}

// Resolve maps any accepted spelling of a domain to its canonical name.
func (c *Catalog) Resolve(name string) (string, bool) {
	k := key(name)
	if k == "" {
		return "", false
	}
	canonical, ok := c.byKey[k]
	return canonical, ok
}

// Names lists canonical names in catalog order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.names...)
}

// Slug renders a name as a lowercase, dash separated token suitable for URLs
// and file names: "AI/ML" becomes "ai-ml".
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.TrimSpace(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			dash = false
			continue
		}
		if b.Len() > 0 && !dash {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// key lowercases name and folds each run of separators into one '-'.
func key(name string) string {
	var b strings.Builder
	pending := false
	for _, r := range name {
		if isSeparator(r) {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte('-')
			pending = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

func isSeparator(r rune) bool {
	switch r {
	case '-', '_', '/', ' ', '\t':
		return true
	}
	return false
}
