// Package vector provides the two similarity-search backends: a native
// one backed by the store's RediSearch commands and a brute-force
// fallback for stores without vector search. Both are selected explicitly
// at construction time via configuration.
//
// Scores are normalized to similarities everywhere: higher means more
// similar. The native engine reports cosine distance and is converted at
// this boundary to avoid inverted-ranking bugs.
package vector

import (
	"math"
	"strconv"
	"strings"
)

const (
	// docKeyPrefix is the key namespace for stored vector entries
	docKeyPrefix = "doc:"
	// indexMetaPrefix is the key namespace for index metadata
	indexMetaPrefix = "doc-index:"

	dimensionsField = "dimensions"
)

func docKey(key string) string {
	return docKeyPrefix + key
}

func indexMetaKey(name string) string {
	return indexMetaPrefix + name
}

func indexKeysKey(name string) string {
	return indexMetaPrefix + name + ":keys"
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}

	return dot / denom
}

func encodeVectorText(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = strconv.FormatFloat(float64(f), 'g', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func decodeVectorText(s string) ([]float32, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, false
	}
	body := strings.TrimSpace(s[1 : len(s)-1])
	if body == "" {
		return []float32{}, true
	}
	parts := strings.Split(body, ",")
	v := make([]float32, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, false
		}
		v[i] = float32(f)
	}
	return v, true
}
