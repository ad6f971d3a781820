package pagination

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 0, time.UTC)

	token := Encode(ts, "usr_abc123")
	require.NotEmpty(t, token)

	cursor, err := Decode(token)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	assert.Equal(t, ts, cursor.CreatedAt)
	assert.Equal(t, "usr_abc123", cursor.ID)
}

func TestDecodeEmptyMeansStart(t *testing.T) {
	cursor, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, cursor)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode("not-base64!!!")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cursor")
}

func TestDecodeRejectsMissingSeparator(t *testing.T) {
	_, err := Decode("bm9waXBl") // base64 of "nopipe"
	assert.Error(t, err)
}

func TestDecodeRejectsNonNumericTimestamp(t *testing.T) {
	token := "bm90YW51bWJlcnx1c3JfMQ==" // base64 of "notanumber|usr_1"
	_, err := Decode(token)
	assert.Error(t, err)
}

func TestComputePageLastPage(t *testing.T) {
	items := []string{"usr_c", "usr_b", "usr_a"}
	page, next, hasMore := ComputePage(items, 5, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, hasMore)
}

func TestComputePageTrimsSentinelRow(t *testing.T) {
	items := []string{"usr_d", "usr_c", "usr_b", "usr_a"}
	page, next, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), s
	})
	assert.Len(t, page, 3)
	assert.True(t, hasMore)

	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "usr_b", c.ID, "cursor points at the last kept row")
}

func TestComputePageExactLimit(t *testing.T) {
	items := []string{"usr_c", "usr_b", "usr_a"}
	page, next, hasMore := ComputePage(items, 3, func(s string) (time.Time, string) {
		return time.Now(), s
	})
	assert.Len(t, page, 3)
	assert.Empty(t, next)
	assert.False(t, hasMore)
}
