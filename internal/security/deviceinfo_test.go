package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	assert.Len(t, normalizeID("some raw hardware string"), 16)
	assert.Equal(t, normalizeID("abc"), normalizeID("  abc \n"), "whitespace must not change the id")
	assert.NotEqual(t, normalizeID("abc"), normalizeID("abd"))
	assert.NotContains(t, normalizeID("Intel(R) Core(TM) i7"), "Intel")
}

func TestBucketMemKB(t *testing.T) {
	tests := []struct {
		kb   string
		want string
	}{
		{"16300000", "8gib"},  // ~15.5 GiB reported on a 16 GiB machine
		{"16777216", "16gib"}, // exactly 16 GiB
		{"33554432", "32gib"},
		{"4194304", "4gib"},
		{"1048576", "1gib"},
		{"524288", "1gib"}, // below 1 GiB still lands in the smallest class
	}
	for _, tt := range tests {
		t.Run(tt.kb, func(t *testing.T) {
			assert.Equal(t, tt.want, bucketMemKB(tt.kb))
		})
	}
}
