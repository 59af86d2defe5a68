package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for range 500 {
		id, err := Generate(PrefixHistory)
		require.NoError(t, err)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestGenerate_Format(t *testing.T) {
	id := MustGenerate(PrefixHistory)

	require.True(t, strings.HasPrefix(id, "hist-"))
	assert.Len(t, strings.TrimPrefix(id, "hist-"), 21)
	assert.NotContains(t, id, "/")
}
