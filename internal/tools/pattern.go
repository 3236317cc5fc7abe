package tools

import (
	"regexp"
	"sync"
)

var (
	patternCacheMu sync.Mutex
	patternCache   = map[string]*regexp.Regexp{}
)

// matchPattern compiles (and caches) pattern, then reports whether s
// matches it. An uncompilable pattern never matches rather than panicking.
func matchPattern(pattern, s string) bool {
	patternCacheMu.Lock()
	re, ok := patternCache[pattern]
	if !ok {
		re, _ = regexp.Compile(pattern)
		patternCache[pattern] = re
	}
	patternCacheMu.Unlock()
	if re == nil {
		return false
	}
	return re.MatchString(s)
}
