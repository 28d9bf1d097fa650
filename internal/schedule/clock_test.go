package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Clock
		ok   bool
	}{
		{raw: "09:00", want: 540, ok: true},
		{raw: "9:05", want: 545, ok: true},
		{raw: " 23:59 ", want: 1439, ok: true},
		{raw: "00:00", want: 0, ok: true},
		{raw: "24:00"},
		{raw: "12:60"},
		{raw: "noon"},
		{raw: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseClock(tt.raw)
			if !tt.ok {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClockString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "09:00", Clock(540).String())
	assert.Equal(t, "00:05", Clock(5).String())
	assert.Equal(t, "10:30", mustClock("09:00").Add(90).String())
}

func TestParseDeadlineKeepsWallClock(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"2024-01-15T09:30", "2024-01-15T09:30:00", "2024-01-15T09:30:00+07:00"} {
		dl, err := ParseDeadline(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, mustClock("09:30"), ClockOf(dl), raw)
	}
	_, err := ParseDeadline("tomorrow")
	require.Error(t, err)
}

func TestClockTextRoundTrip(t *testing.T) {
	t.Parallel()
	var c Clock
	require.NoError(t, c.UnmarshalText([]byte("17:45")))
	assert.Equal(t, Clock(17*60+45), c)
	b, err := c.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "17:45", string(b))
	require.Error(t, c.UnmarshalText([]byte("5pm")))
}
