package timeparse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeToken(t *testing.T) {
	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Ghost Tour (7:00 PM)", "19:00", true},
		{"Ghost Tour (7 pm)", "19:00", true},
		{"Ghost Tour (7:30pm)", "19:30", true},
		{"Morning Walk (9:15 AM)", "09:15", true},
		{"Midnight Tour (12:00 AM)", "00:00", true},
		{"Noon Tour (12 PM)", "12:00", true},
		{"Late Show 21:45", "21:45", true},
		{"Tour 6pm (Adult) (8:00 PM)", "20:00", true},
		{"Tour 6pm (Adult)", "18:00", true},
		{"Gift Card", "", false},
		{"Tour (Adult)", "", false},
		{"Tour (13:00 PM)", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			got, ok := ParseTimeToken(tt.title)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizeTime(t *testing.T) {
	got, err := NormalizeTime("7:00 PM")
	require.NoError(t, err)
	assert.Equal(t, "19:00", got)

	got, err = NormalizeTime("19:00:00")
	require.NoError(t, err)
	assert.Equal(t, "19:00", got)

	got, err = NormalizeTime("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = NormalizeTime("evening")
	assert.Error(t, err)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"2025-06-01", "June 1, 2025", "06/01/2025", "Jun 1, 2025", "20250601"} {
		got, err := ParseDate(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseDate("next tuesday")
	assert.Error(t, err)
}

func TestDateKey(t *testing.T) {
	assert.Equal(t, "2025-06-01", DateKey("2025-06-01", ""))
	assert.Equal(t, "2025-06-01 19:00", DateKey("2025-06-01", "19:00"))

	date, clock := SplitDateKey("2025-06-01 19:00")
	assert.Equal(t, "2025-06-01", date)
	assert.Equal(t, "19:00", clock)

	date, clock = SplitDateKey("2025-06-01")
	assert.Equal(t, "2025-06-01", date)
	assert.Empty(t, clock)
}
