package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

// SearchKey builds the cache key of a ranked search page
func SearchKey(term string, limit, offset *int) string {
	parts := []string{strings.ToLower(strings.TrimSpace(term)), optional(limit), optional(offset)}
	return "search:" + digest(strings.Join(parts, "\x00"))
}

// RequestKey builds the cache key of a GET request from its path and sorted query
func RequestKey(r *http.Request) string {
	query := r.URL.Query()
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteString(" ")
	b.WriteString(r.URL.Path)
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString("&")
			b.WriteString(name)
			b.WriteString("=")
			b.WriteString(v)
		}
	}
	return "http:" + digest(b.String())
}

func optional(v *int) string {
	if v == nil {
		return "-"
	}
	return strconv.Itoa(*v)
}

// digest truncates a sha256 to 16 bytes for shorter keys
func digest(s string) string {
	hash := sha256.Sum256([]byte(s))
	return hex.EncodeToString(hash[:16])
}
