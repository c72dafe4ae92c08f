package timefmt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelative(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0, "00:00:00,000"},
		{3661.234, "01:01:01,234"},
		{59.9994, "00:00:59,999"},
		{59.9996, "00:01:00,000"},
		{90061.5, "25:01:01,500"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Relative(c.in), "Relative(%v)", c.in)
	}
}

func TestWallClock_NoStart(t *testing.T) {
	s, ok := WallClock(nil, 12.5)
	assert.False(t, ok)
	assert.Empty(t, s)
}

func TestWallClock_WithOffset(t *testing.T) {
	start, err := ParseStartClock("2024-05-01T14:32:05-03:00")
	require.NoError(t, err)
	require.True(t, start.HasOffset)

	s, ok := WallClock(start, 2.75)
	require.True(t, ok)
	assert.Equal(t, "14:32:07 -03:00", s)
}

func TestWallClock_UTC(t *testing.T) {
	start, err := ParseStartClock("2024-05-01T23:59:59Z")
	require.NoError(t, err)

	s, ok := WallClock(start, 1)
	require.True(t, ok)
	assert.Equal(t, "00:00:00 +00:00", s)
}

func TestWallClock_Naive(t *testing.T) {
	start, err := ParseStartClock("2024-05-01 08:00:00")
	require.NoError(t, err)
	assert.False(t, start.HasOffset)

	s, ok := WallClock(start, 61)
	require.True(t, ok)
	assert.Equal(t, "08:01:01", s)
}

func TestParseStartClock(t *testing.T) {
	valid := []string{
		"2024-05-01T14:32:05-03:00",
		"2024-05-01T14:32:05.123+02:00",
		"2024-05-01T14:32:05+0200",
		"2024-05-01T14:32",
		"2024-05-01",
		"  2024-05-01T14:32:05  ",
	}
	for _, v := range valid {
		_, err := ParseStartClock(v)
		assert.NoError(t, err, v)
	}

	_, err := ParseStartClock("not-a-date")
	assert.ErrorIs(t, err, ErrInvalidStartClock)
}
