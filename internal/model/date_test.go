package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDaysBetween(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"2024-01-01", "2024-01-01", 0},
		{"2024-01-01", "2024-01-10", 9},
		{"2024-01-10", "2024-01-01", -9},
		{"2024-02-28", "2024-03-01", 2},
		{"1700-01-01", "2024-01-10", 118347},
		{"1500-06-15", "2024-06-15", 191388},
	}
	for _, tt := range tests {
		t.Run(tt.a+"_"+tt.b, func(t *testing.T) {
			a, err := ParseDay(tt.a)
			require.NoError(t, err)
			b, err := ParseDay(tt.b)
			require.NoError(t, err)
			assert.Equal(t, tt.want, DaysBetween(a, b))
		})
	}
}

func TestDay_IgnoresClockAndZone(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2024, 3, 9, 23, 30, 0, 0, loc)
	assert.Equal(t, "2024-03-09", FormatDay(late))
	assert.True(t, SameDay(late, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-10", FormatDay(AddDays(late, 1)))
}
