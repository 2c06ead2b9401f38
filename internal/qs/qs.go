// Package qs implements the query-string codec used for form bodies and
// multipart field names: bracket-notation nesting, repetition as arrays.
//
//	a=1&a=2          -> {a: [1, 2]}
//	a[b]=1&a[c]=2    -> {a: {b: 1, c: 2}}
//	a[]=1&a[]=2      -> {a: [1, 2]}
//	a[0]=x&a[1]=y    -> {a: [x, y]}
package qs

import (
	"net/url"
	"strings"
)

const (
	// MaxDepth is the deepest bracket nesting that is expanded; the remainder
	// of a deeper key is kept as one literal segment.
	MaxDepth = 5
	// ArrayLimit is the highest explicit index that still produces an array
	ArrayLimit = 20
	// ParameterLimit caps the number of pairs read by Parse
	ParameterLimit = 1000
)

// Pair is one flat key/value entry in arrival order
type Pair struct {
	Key   string
	Value any
}

// Parse decodes a urlencoded string into a nested mapping. Malformed escapes
// are kept verbatim instead of failing.
func Parse(query string) map[string]any {
	return Expand(Split(query))
}

// Split decodes a urlencoded string into flat pairs without nesting
func Split(query string) []Pair {
	var pairs []Pair
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		if len(pairs) == ParameterLimit {
			break
		}

		key, value, _ := strings.Cut(part, "=")
		pairs = append(pairs, Pair{
			Key:   unescape(key),
			Value: unescape(value),
		})
	}
	return pairs
}

func unescape(s string) string {
	decoded, err := url.QueryUnescape(s)
	if err != nil {
		return strings.ReplaceAll(s, "+", " ")
	}
	return decoded
}

// SplitKey breaks "a[b][c]" into ["a", "b", "c"]. Keys without a complete
// bracket segment are returned whole.
func SplitKey(key string) []string {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return []string{key}
	}

	var segments []string
	if open > 0 {
		segments = append(segments, key[:open])
	}

	rest := key[open:]
	depth := 0
	for len(rest) > 0 && rest[0] == '[' && depth < MaxDepth {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			break
		}
		segments = append(segments, rest[1:end])
		rest = rest[end+1:]
		depth++
	}

	if depth == 0 {
		return []string{key}
	}
	if rest != "" {
		segments = append(segments, rest)
	}
	return segments
}

// HasBrackets reports whether a key uses bracket notation
func HasBrackets(key string) bool {
	return strings.IndexByte(key, '[') >= 0
}
