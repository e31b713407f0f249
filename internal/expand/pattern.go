package expand

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"mvdan.cc/sh/v3/pattern"
)

// patternCacheSize bounds the compiled patterns kept across expansions.
const patternCacheSize = 512

// patterns maps mode+pattern to its regexp, nil when the pattern is invalid.
var patterns = mustCache(patternCacheSize)

func mustCache(size int) *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		panic(err)
	}
	return c
}

func compile(pat string, mode pattern.Mode) *regexp.Regexp {
	key := string(rune('0'+mode)) + pat
	if rx, ok := patterns.Get(key); ok {
		return rx
	}
	var rx *regexp.Regexp
	if expr, err := pattern.Regexp(pat, mode|pattern.EntireString); err == nil {
		rx, _ = regexp.Compile(expr)
	}
	patterns.Add(key, rx)
	return rx
}

// Match reports whether s matches the shell pattern pat as a whole. An
// invalid pattern only matches its own unescaped text.
func Match(pat, s string) bool {
	rx := compile(pat, 0)
	if rx == nil {
		return unescapeMeta(pat) == s
	}
	return rx.MatchString(s)
}

func matchName(pat, name string) bool {
	rx := compile(pat, pattern.Filenames)
	if rx == nil {
		return unescapeMeta(pat) == name
	}
	return rx.MatchString(name)
}

// hasMeta reports whether s contains an unescaped *, ? or [.
func hasMeta(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case '*', '?', '[':
			return true
		}
	}
	return false
}

// quoteMeta escapes s so that it matches itself as a pattern.
func quoteMeta(s string) string {
	if !strings.ContainsAny(s, `*?[]\`) {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(`*?[]\`, s[i]) >= 0 {
			sb.WriteByte('\\')
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}

func unescapeMeta(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var sb strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		sb.WriteByte(s[i])
	}
	return sb.String()
}
