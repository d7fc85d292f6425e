package http

import (
	"maps"
	"slices"
	"strings"
)

// Header maps a header name to its value. Names keep the case they were
// received or set with; a later Set of the same name replaces the value.
type Header map[string]string

// Get returns the value for key. An exact match wins, otherwise the
// lookup falls back to a case-insensitive scan.
func (h Header) Get(key string) string {
	v, _ := h.Lookup(key)
	return v
}

// Lookup is Get that also reports whether the header was present
func (h Header) Lookup(key string) (string, bool) {
	if v, ok := h[key]; ok {
		return v, true
	}
	for k, v := range h {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return "", false
}

// Set stores value under key, dropping any differently cased duplicate
func (h Header) Set(key, value string) {
	h.Del(key)
	h[key] = value
}

// Del removes key in any case
func (h Header) Del(key string) {
	for k := range h {
		if strings.EqualFold(k, key) {
			delete(h, k)
		}
	}
}

// Clone returns a copy of h
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	return maps.Clone(h)
}

// sortedKeys gives the encoders a stable header order
func (h Header) sortedKeys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
