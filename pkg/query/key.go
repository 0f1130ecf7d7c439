package query

import (
	"strconv"
	"strings"
)

// Key identifies a cached query, e.g. Key{"tracks", "42"}. Keys are compared
// element-wise; a shorter key matches every key it prefixes.
type Key []string

func (k Key) String() string {
	parts := make([]string, len(k))
	for i, p := range k {
		parts[i] = strconv.Quote(p)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}
