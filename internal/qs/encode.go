package qs

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Encode serializes a mapping using bracket notation with explicit indices.
// Keys are sorted so the output is deterministic.
func Encode(m map[string]any) string {
	var parts []string
	for _, key := range sortedKeys(m) {
		parts = encodeValue(parts, key, m[key])
	}
	return strings.Join(parts, "&")
}

func encodeValue(parts []string, prefix string, value any) []string {
	switch v := value.(type) {
	case map[string]any:
		for _, key := range sortedKeys(v) {
			parts = encodeValue(parts, prefix+"["+key+"]", v[key])
		}
		return parts
	case []any:
		for i, item := range v {
			parts = encodeValue(parts, prefix+"["+strconv.Itoa(i)+"]", item)
		}
		return parts
	case []string:
		for i, item := range v {
			parts = encodeValue(parts, prefix+"["+strconv.Itoa(i)+"]", item)
		}
		return parts
	case nil:
		return append(parts, url.QueryEscape(prefix)+"=")
	case string:
		return append(parts, url.QueryEscape(prefix)+"="+url.QueryEscape(v))
	default:
		return append(parts, url.QueryEscape(prefix)+"="+url.QueryEscape(fmt.Sprint(v)))
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
