// Package globmatch implements the gateway's single glob syntax: '*'
// matches zero or more characters anywhere in the string; every other
// character matches literally. There is no path-segment notion — the
// whole model name is one match unit.
package globmatch

import (
	"regexp"
	"strings"
	"sync"
)

var (
	cacheMu sync.RWMutex
	cache   = map[string]*regexp.Regexp{}
)

// Match reports whether name matches pattern under the gateway's glob
// syntax. Compiled patterns are cached process-wide since the same model
// patterns are matched repeatedly on every dispatch.
func Match(pattern, name string) bool {
	re := compiled(pattern)
	return re.MatchString(name)
}

func compiled(pattern string) *regexp.Regexp {
	cacheMu.RLock()
	re, ok := cache[pattern]
	cacheMu.RUnlock()
	if ok {
		return re
	}

	var b strings.Builder
	b.WriteString("^")
	for _, r := range pattern {
		if r == '*' {
			b.WriteString(".*")
			continue
		}
		b.WriteString(regexp.QuoteMeta(string(r)))
	}
	b.WriteString("$")
	re = regexp.MustCompile(b.String())

	cacheMu.Lock()
	cache[pattern] = re
	cacheMu.Unlock()
	return re
}

// MatchAny reports whether name matches any of patterns.
func MatchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if Match(p, name) {
			return true
		}
	}
	return false
}
