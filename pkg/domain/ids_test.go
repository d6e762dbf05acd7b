package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListingID(t *testing.T) {
	t.Run("parses a positive decimal", func(t *testing.T) {
		id, err := ParseListingID("42")
		require.NoError(t, err)
		assert.Equal(t, ListingID(42), id)
		assert.True(t, id.IsValid())
	})

	t.Run("rejects zero and negatives", func(t *testing.T) {
		for _, input := range []string{"0", "-1", "-42"} {
			_, err := ParseListingID(input)
			require.Error(t, err, "input %q", input)
		}
	})

	t.Run("rejects non-numeric input", func(t *testing.T) {
		for _, input := range []string{"", "abc", "1.5", "1e3", " 1", "1 "} {
			_, err := ParseListingID(input)
			require.Error(t, err, "input %q", input)
		}
	})
}

func TestIdentityIsZero(t *testing.T) {
	assert.True(t, Identity("").IsZero())
	assert.True(t, Identity("   ").IsZero())
	assert.False(t, Identity("user:alice").IsZero())
}
