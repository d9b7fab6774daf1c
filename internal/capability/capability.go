// Package capability models feature and permission keys as closed types.
//
// A capability key is a dot-namespaced string such as "analytics.advanced".
// Its category is everything before the first dot ("analytics"). Plans grant
// capabilities through a GrantSet, which understands the global wildcard "*"
// and category wildcards "<category>.*". Roles grant permissions through a
// PermissionSet, which only understands "*" and exact keys.
package capability

import "strings"

const (
	globalWildcard = "*"
	categorySuffix = ".*"
)

// Capability is a parsed capability key.
type Capability struct {
	key      string
	category string
}

// Parse splits key into its category and keeps the raw key for exact
// matching. A key without a dot is its own category.
func Parse(key string) Capability {
	category := key
	if i := strings.IndexByte(key, '.'); i >= 0 {
		category = key[:i]
	}
	return Capability{key: key, category: category}
}

// Key returns the raw capability key.
func (c Capability) Key() string { return c.key }

// Category returns the namespace before the first dot.
func (c Capability) Category() string { return c.category }

func (c Capability) String() string { return c.key }

// Wildcard marks a grant that covers more than one capability. The zero
// value is the global wildcard; a non-empty Category limits it to one
// namespace.
type Wildcard struct {
	Category string
}

// Global reports whether w grants every capability.
func (w Wildcard) Global() bool { return w.Category == "" }

// Covers reports whether w grants c.
func (w Wildcard) Covers(c Capability) bool {
	return w.Global() || w.Category == c.category
}

func (w Wildcard) String() string {
	if w.Global() {
		return globalWildcard
	}
	return w.Category + categorySuffix
}

// parseWildcard recognizes "*" and "<category>.*" where category has no dot.
func parseWildcard(key string) (Wildcard, bool) {
	if key == globalWildcard {
		return Wildcard{}, true
	}
	if !strings.HasSuffix(key, categorySuffix) {
		return Wildcard{}, false
	}
	category := strings.TrimSuffix(key, categorySuffix)
	if category == "" || strings.Contains(category, ".") {
		return Wildcard{}, false
	}
	return Wildcard{Category: category}, true
}

// GrantSet is the typed form of a plan's feature list.
type GrantSet struct {
	global     bool
	categories map[string]struct{}
	exact      map[string]struct{}
}

// NewGrantSet parses raw feature keys. Blank entries are ignored.
func NewGrantSet(keys []string) GrantSet {
	g := GrantSet{
		categories: make(map[string]struct{}),
		exact:      make(map[string]struct{}, len(keys)),
	}
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		// Wildcard keys also count as exact keys so that asking for
		// "analytics.*" verbatim matches.
		g.exact[key] = struct{}{}
		if w, ok := parseWildcard(key); ok {
			if w.Global() {
				g.global = true
			} else {
				g.categories[w.Category] = struct{}{}
			}
		}
	}
	return g
}

// Allows reports whether the set grants c: global wildcard, exact key, or
// the category wildcard of c.
func (g GrantSet) Allows(c Capability) bool {
	if g.global {
		return true
	}
	if _, ok := g.exact[c.key]; ok {
		return true
	}
	_, ok := g.categories[c.category]
	return ok
}

// AllowsKey parses key and calls Allows.
func (g GrantSet) AllowsKey(key string) bool {
	return g.Allows(Parse(key))
}

// Wildcards returns the wildcard grants in the set.
func (g GrantSet) Wildcards() []Wildcard {
	var out []Wildcard
	if g.global {
		out = append(out, Wildcard{})
	}
	for category := range g.categories {
		out = append(out, Wildcard{Category: category})
	}
	return out
}

// PermissionSet is the typed form of a role's permission list. Only "*"
// is special; "orders.*" is an ordinary key and does not cover
// "orders.view".
type PermissionSet struct {
	all  bool
	keys map[string]struct{}
}

// NewPermissionSet parses raw permission keys.
func NewPermissionSet(keys []string) PermissionSet {
	p := PermissionSet{keys: make(map[string]struct{}, len(keys))}
	for _, raw := range keys {
		key := strings.TrimSpace(raw)
		if key == "" {
			continue
		}
		if key == globalWildcard {
			p.all = true
		}
		p.keys[key] = struct{}{}
	}
	return p
}

// Has reports whether the set holds "*" or key verbatim.
func (p PermissionSet) Has(key string) bool {
	if p.all {
		return true
	}
	_, ok := p.keys[key]
	return ok
}
