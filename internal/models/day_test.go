package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDay(t *testing.T) {
	d, err := ParseDay("2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, Day("2026-03-10"), d)

	for _, bad := range []string{"", "10-03-2026", "2026-3-10", "2026-03-10T08:00:00Z", "yesterday"} {
		_, err := ParseDay(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestDayArithmetic(t *testing.T) {
	assert.Equal(t, Day("2026-03-01"), Day("2026-02-28").AddDays(1))
	assert.Equal(t, Day("2024-02-29"), Day("2024-03-01").Prev())
	assert.Equal(t, Day("2026-01-01"), Day("2025-12-31").AddDays(1))
	assert.Equal(t, Day("2026-03-03"), Day("2026-03-10").AddDays(-7))
}

func TestDayOrdering(t *testing.T) {
	assert.True(t, Day("2026-03-09").Before("2026-03-10"))
	assert.False(t, Day("2026-03-10").Before("2026-03-10"))
	assert.True(t, Day("2026-02-28").Before("2026-03-01"))
}

func TestNewDayUsesCalendarDate(t *testing.T) {
	assert.Equal(t, Day("2026-03-10"), NewDay(time.Date(2026, 3, 10, 23, 59, 0, 0, time.UTC)))
}
