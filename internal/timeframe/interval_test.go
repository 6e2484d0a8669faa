package timeframe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		minutes int64
	}{
		{"1m", 1},
		{"5m", 5},
		{"15m", 15},
		{"1h", 60},
		{"4h", 240},
		{"1d", 1440},
		{"3d", 4320},
		{"1w", 10080},
		{"0m", 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			iv, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.minutes, iv.Minutes())
			assert.Equal(t, tt.in, iv.String())
			assert.Equal(t, tt.minutes*60_000, iv.Milliseconds())
		})
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"5x", "m5", "", "m", "1M", "1s", "5 m", "-5m", "5m ", "1.5h", "99999999999999999999m"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidInterval)
		})
	}
}

func TestInterval_CloseTime(t *testing.T) {
	iv := MustParse("1h")
	open := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.Equal(t, open+3_599_999, iv.CloseTime(open))
	assert.Equal(t, time.Hour, iv.Duration())
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("bogus") })
}
