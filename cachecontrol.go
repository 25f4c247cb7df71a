package storagelru

import (
	"strconv"
	"strings"
)

// CacheControl holds the directives understood by the cache, parsed from an
// HTTP Cache-Control style string such as
// "max-age=300,stale-while-revalidate=60".
type CacheControl struct {
	MaxAge               int64
	StaleWhileRevalidate int64
	NoCache              bool
	NoStore              bool
}

// ParseCacheControl parses a comma separated list of directives. Directive
// names are case-insensitive, unknown directives are ignored, and numeric
// values that do not parse are treated as zero.
func ParseCacheControl(s string) CacheControl {
	var cc CacheControl
	if s == "" {
		return cc
	}

	for _, part := range strings.Split(strings.ToLower(s), ",") {
		name, value, hasValue := strings.Cut(strings.TrimSpace(part), "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)

		switch name {
		case "max-age":
			if hasValue {
				cc.MaxAge = parseSeconds(value)
			}
		case "stale-while-revalidate":
			if hasValue {
				cc.StaleWhileRevalidate = parseSeconds(value)
			}
		case "no-cache":
			cc.NoCache = true
		case "no-store":
			cc.NoStore = true
		}
	}
	return cc
}

// Valid reports whether the directives allow an item to be cached.
func (cc CacheControl) Valid() bool {
	return !cc.NoCache && !cc.NoStore && cc.MaxAge > 0 && cc.StaleWhileRevalidate >= 0
}

func parseSeconds(s string) int64 {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return n
}
