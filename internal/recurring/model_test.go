package recurring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextAfterMonthly(t *testing.T) {
	next := FrequencyMonthly.NextAfter(date(2024, 2, 1), 1)
	assert.Equal(t, date(2024, 3, 1), next)
}

func TestNextAfterMonthEndClamp(t *testing.T) {
	// Anchored on the 31st: clamps in short months, snaps back after.
	run := date(2024, 1, 31)
	run = FrequencyMonthly.NextAfter(run, 31)
	assert.Equal(t, date(2024, 2, 29), run)
	run = FrequencyMonthly.NextAfter(run, 31)
	assert.Equal(t, date(2024, 3, 31), run)
	run = FrequencyMonthly.NextAfter(run, 31)
	assert.Equal(t, date(2024, 4, 30), run)
}

func TestNextAfterClampNonLeapFebruary(t *testing.T) {
	next := FrequencyMonthly.NextAfter(date(2023, 1, 30), 30)
	assert.Equal(t, date(2023, 2, 28), next)
}

func TestNextAfterWeekly(t *testing.T) {
	next := FrequencyWeekly.NextAfter(date(2024, 2, 26), 26)
	assert.Equal(t, date(2024, 3, 4), next)
}

func TestNextAfterQuarterlyAndAnnual(t *testing.T) {
	assert.Equal(t, date(2024, 4, 15), FrequencyQuarterly.NextAfter(date(2024, 1, 15), 15))
	assert.Equal(t, date(2025, 2, 28), FrequencyAnnual.NextAfter(date(2024, 2, 29), 29))
}

func TestNextAfterDayBasedCadences(t *testing.T) {
	assert.Equal(t, date(2024, 3, 1), FrequencyDaily.NextAfter(date(2024, 2, 29), 29))
	assert.Equal(t, date(2024, 3, 11), FrequencyBiweekly.NextAfter(date(2024, 2, 26), 26))
}

func TestNextAfterSemiannualClamp(t *testing.T) {
	// Aug 31 anchored on the 31st lands on the last day of February.
	assert.Equal(t, date(2024, 2, 29), FrequencySemiannual.NextAfter(date(2023, 8, 31), 31))
}

func TestFrequencyValid(t *testing.T) {
	assert.True(t, FrequencyMonthly.Valid())
	assert.True(t, FrequencyDaily.Valid())
	assert.False(t, Frequency("HOURLY").Valid())
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, StatusActive.CanTransition(StatusPaused))
	assert.True(t, StatusActive.CanTransition(StatusCancelled))
	assert.True(t, StatusPaused.CanTransition(StatusActive))
	assert.True(t, StatusPaused.CanTransition(StatusCancelled))
	assert.False(t, StatusCancelled.CanTransition(StatusActive))
	assert.False(t, StatusCancelled.CanTransition(StatusPaused))
	assert.False(t, StatusActive.CanTransition(StatusActive))
}
