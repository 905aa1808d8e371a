// ABOUTME: Tests for status normalization and fulfilled-status matching
// ABOUTME: Covers unicode folding, prefix tolerance, and discovery fallback
package crm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeStatusValue(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Fullföljd", "fullföljd"},
		{"  Fullföljd  ", "fullföljd"},
		{"Fullföljd.", "fullföljd"},
		{"Fullföljd;", "fullföljd"},
		{"Fullföljd – klar", "fullföljd - klar"}, // en dash folds to hyphen
		{"Fullföljd — klar", "fullföljd - klar"}, // em dash too
		{"Fullföljd\t\tklar", "fullföljd klar"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeStatusValue(tt.in), "input %q", tt.in)
	}
}

func TestStatusMatchesPrefixTolerant(t *testing.T) {
	assert.True(t, statusMatches("Fullföljd", "fullföljd"))
	assert.True(t, statusMatches("Fullföljd", "Fullföljd - klar"))
	assert.True(t, statusMatches("Fullföljd - klar", "Fullföljd"))
	assert.False(t, statusMatches("Fullföljd", "Avbruten"))
	assert.False(t, statusMatches("", "Fullföljd"))
	assert.False(t, statusMatches("Fullföljd", ""))
}

func TestNormalizeLookupKey(t *testing.T) {
	assert.Equal(t, "saljid", normalizeLookupKey("Säljid"))
	assert.Equal(t, "saljid", normalizeLookupKey("saljid"))
	assert.Equal(t, "saledate2", normalizeLookupKey("Sale_Date-2"))
	assert.Equal(t, "", normalizeLookupKey("___"))
}

func TestIsFulfilledConfiguredLabelsOnly(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FulfilledValues = []string{"Fullföljd"}

	// No client wired: resolver degrades to configured labels
	resolver := NewStatusResolver(cfg, nil)

	assert.True(t, resolver.IsFulfilled("Fullföljd"))
	assert.True(t, resolver.IsFulfilled("fullföljd."))
	assert.True(t, resolver.IsFulfilled("Fullföljd - klar"))
	assert.False(t, resolver.IsFulfilled("Makulerad"))
	assert.False(t, resolver.IsFulfilled(""))
}
