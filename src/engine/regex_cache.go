package engine

import (
	"regexp"
	"strings"

	"docpipe/src/models"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultRegexCacheSize = 128

// RegexCache holds compiled $regex patterns keyed by options and pattern.
// It is safe for concurrent use; a nil cache compiles on every call.
type RegexCache struct {
	cache *lru.Cache[string, *regexp.Regexp]
}

func NewRegexCache(size int) (*RegexCache, error) {
	if size <= 0 {
		size = DefaultRegexCacheSize
	}
	c, err := lru.New[string, *regexp.Regexp](size)
	if err != nil {
		return nil, err
	}
	return &RegexCache{cache: c}, nil
}

// Compile returns the compiled pattern. Supported options are i, m, s and x.
func (rc *RegexCache) Compile(pattern, options string) (*regexp.Regexp, error) {
	key := options + "/" + pattern
	if rc != nil {
		if re, ok := rc.cache.Get(key); ok {
			return re, nil
		}
	}

	re, err := compileRegex(pattern, options)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		rc.cache.Add(key, re)
	}
	return re, nil
}

// Len is the number of cached patterns.
func (rc *RegexCache) Len() int {
	if rc == nil {
		return 0
	}
	return rc.cache.Len()
}

func compileRegex(pattern, options string) (*regexp.Regexp, error) {
	var flags strings.Builder
	for _, o := range options {
		switch o {
		case 'i', 'm', 's':
			flags.WriteRune(o)
		case 'x':
			pattern = stripExtended(pattern)
		default:
			return nil, models.NewInvalidArgument("$regex", "unsupported option %q", o)
		}
	}
	if flags.Len() > 0 {
		pattern = "(?" + flags.String() + ")" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, models.NewInvalidArgument("$regex", "bad pattern %q: %v", pattern, err)
	}
	return re, nil
}

// stripExtended drops unescaped whitespace and #-comments outside character
// classes.
func stripExtended(pattern string) string {
	var sb strings.Builder
	inClass, escaped, comment := false, false, false
	for _, r := range pattern {
		switch {
		case comment:
			if r == '\n' {
				comment = false
			}
			continue
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case inClass:
			if r == ']' {
				inClass = false
			}
		case r == '[':
			inClass = true
		case r == '#':
			comment = true
			continue
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
