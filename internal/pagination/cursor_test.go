package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cursor, err := Decode(Encode(ts, "pur_9f2c"))
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, ts, cursor.CreatedAt)
	assert.Equal(t, "pur_9f2c", cursor.ID)
}

func TestDecode_EmptyMeansFirstPage(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecode_Invalid(t *testing.T) {
	cases := []string{
		"not-base64!!!",
		"bm9waXBl",     // valid base64, no separator
		"eHx wcl8x",    // whitespace breaks base64
		"bm90YW5pbnR8", // timestamp is not numeric
	}
	for _, s := range cases {
		_, err := Decode(s)
		assert.ErrorIsf(t, err, ErrInvalidCursor, "input %q", s)
	}
}

func TestComputePage(t *testing.T) {
	key := func(s string) (time.Time, string) {
		return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), s
	}

	t.Run("under limit", func(t *testing.T) {
		page, next, hasMore := ComputePage([]string{"pur_a", "pur_b"}, 5, key)
		assert.Len(t, page, 2)
		assert.Empty(t, next)
		assert.False(t, hasMore)
	})

	t.Run("exactly limit", func(t *testing.T) {
		page, next, hasMore := ComputePage([]string{"pur_a", "pur_b", "pur_c"}, 3, key)
		assert.Len(t, page, 3)
		assert.Empty(t, next)
		assert.False(t, hasMore)
	})

	t.Run("overflow yields cursor at last served item", func(t *testing.T) {
		page, next, hasMore := ComputePage([]string{"pur_a", "pur_b", "pur_c", "pur_d"}, 3, key)
		assert.Len(t, page, 3)
		assert.True(t, hasMore)

		cursor, err := Decode(next)
		require.NoError(t, err)
		assert.Equal(t, "pur_c", cursor.ID)
	})
}
