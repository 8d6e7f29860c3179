package cache

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

const keyPrefix = "kbsearch"

// Key identifies one cached result set. Query is the compiled expression's
// normalised key (term order independent), Opts serialises the result-shaping
// options, and Scope is the category filter so invalidation can target the
// affected entries. Keys carry the scope in clear text and hash the rest:
// "kbsearch:<scope>:<hash>".
type Key struct {
	Query string
	Scope string
	Opts  string
}

func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Query + "|" + k.Opts))
	return fmt.Sprintf("%s:%s:%x", keyPrefix, strings.ToLower(k.Scope), sum[:16])
}

// scopeOf extracts the scope segment from a rendered key.
func scopeOf(key string) string {
	rest, ok := strings.CutPrefix(key, keyPrefix+":")
	if !ok {
		return ""
	}
	scope, _, _ := strings.Cut(rest, ":")
	return scope
}

// scopeMatches reports whether an entry with entryScope must be dropped when
// records in scope change. Unscoped entries can contain records from any
// category, so they are dropped on every scoped invalidation; an empty scope
// means the affected category is unknown and everything goes.
func scopeMatches(entryScope, scope string) bool {
	return scope == "" || entryScope == "" || entryScope == strings.ToLower(scope)
}
