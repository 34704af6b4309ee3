package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"site_url", "site_url", 0},
		{"siteurl", "site_url", 1},
		{"kitten", "sitting", 3},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestClosestMatch(t *testing.T) {
	assert.Equal(t, "site_url", closestMatch("siteurl", knownKeysList))
	assert.Equal(t, "log_level", closestMatch("loglevel", knownKeysList))
	assert.Empty(t, closestMatch("completely_unrelated_key", knownKeysList))
}
