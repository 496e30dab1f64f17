package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchedule_TwelveMonthAnnuity(t *testing.T) {
	start := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	schedule, err := BuildSchedule(5_000_000, decimal.NewFromInt(12), 12, start)
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	var totalPrincipal int64
	for i, entry := range schedule {
		assert.Equal(t, i+1, entry.Sequence)
		assert.Equal(t, start.AddDate(0, i+1, 0), entry.DueDate)
		assert.Equal(t, entry.Principal+entry.Interest, entry.Payment)
		assert.GreaterOrEqual(t, entry.Principal, int64(0))
		assert.GreaterOrEqual(t, entry.Interest, int64(0))
		totalPrincipal += entry.Principal
	}

	assert.Equal(t, int64(5_000_000), totalPrincipal)
	assert.Equal(t, int64(0), schedule[len(schedule)-1].Remaining)

	// 5,000,000 at 12% over 12 months amortizes to about 444,244 per month.
	first := schedule[0]
	assert.Equal(t, int64(50_000), first.Interest)
	assert.Equal(t, int64(444_244), first.Payment)
}

func TestBuildSchedule_Deterministic(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	rate := decimal.RequireFromString("9.5")

	a, err := BuildSchedule(10_000_000, rate, 24, start)
	require.NoError(t, err)
	b, err := BuildSchedule(10_000_000, rate, 24, start)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestBuildSchedule_ZeroRateSplitsEvenly(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	schedule, err := BuildSchedule(1_200_000, decimal.Zero, 12, start)
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	for _, entry := range schedule {
		assert.Equal(t, int64(0), entry.Interest)
		assert.Equal(t, int64(100_000), entry.Payment)
	}
	assert.Equal(t, int64(0), schedule[11].Remaining)
}

func TestBuildSchedule_ResidualLandsInLastInstallment(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	// 1,000,001 does not divide evenly by 3; the residual must end up in the
	// final installment and the balance must still reach zero.
	schedule, err := BuildSchedule(1_000_001, decimal.Zero, 3, start)
	require.NoError(t, err)
	require.Len(t, schedule, 3)

	var totalPrincipal int64
	for _, entry := range schedule {
		totalPrincipal += entry.Principal
	}
	assert.Equal(t, int64(1_000_001), totalPrincipal)
	assert.Equal(t, int64(0), schedule[2].Remaining)
}

func TestBuildSchedule_SingleInstallment(t *testing.T) {
	start := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	schedule, err := BuildSchedule(500_000, decimal.NewFromInt(12), 1, start)
	require.NoError(t, err)
	require.Len(t, schedule, 1)

	assert.Equal(t, int64(500_000), schedule[0].Principal)
	assert.Equal(t, int64(5_000), schedule[0].Interest)
	assert.Equal(t, int64(0), schedule[0].Remaining)
}

func TestBuildSchedule_MonthEndDueDatesDoNotDrift(t *testing.T) {
	// A Jan 31 start must clamp short months instead of normalizing into the
	// next month and drifting.
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)

	schedule, err := BuildSchedule(1_200_000, decimal.Zero, 12, start)
	require.NoError(t, err)
	require.Len(t, schedule, 12)

	assert.Equal(t, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
	assert.Equal(t, time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), schedule[1].DueDate)
	assert.Equal(t, time.Date(2026, 4, 30, 0, 0, 0, 0, time.UTC), schedule[2].DueDate)
	assert.Equal(t, time.Date(2026, 11, 30, 0, 0, 0, 0, time.UTC), schedule[9].DueDate)
	assert.Equal(t, time.Date(2027, 1, 31, 0, 0, 0, 0, time.UTC), schedule[11].DueDate)
}

func TestBuildSchedule_LeapFebruaryDueDate(t *testing.T) {
	start := time.Date(2028, 1, 31, 0, 0, 0, 0, time.UTC)

	schedule, err := BuildSchedule(600_000, decimal.Zero, 3, start)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC), schedule[0].DueDate)
}

func TestBuildSchedule_RejectsInvalidTerms(t *testing.T) {
	start := time.Now()

	_, err := BuildSchedule(0, decimal.NewFromInt(12), 12, start)
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = BuildSchedule(-100, decimal.NewFromInt(12), 12, start)
	assert.ErrorIs(t, err, ErrInvalidPrincipal)

	_, err = BuildSchedule(1_000_000, decimal.NewFromInt(12), 0, start)
	assert.ErrorIs(t, err, ErrInvalidTenor)

	_, err = BuildSchedule(1_000_000, decimal.NewFromInt(-1), 12, start)
	assert.ErrorIs(t, err, ErrInvalidRate)
}
