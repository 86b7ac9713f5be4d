package core_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/budget-forecaster/core"
)

// =============================================================================
// SPAN
// =============================================================================

func TestSpan_Bounds(t *testing.T) {
	s := span(t, "2023-03-01", core.Months(1))

	assert.Equal(t, day("2023-03-01"), s.InitialDate())
	assert.Equal(t, day("2023-03-31"), s.LastDate())
	assert.Equal(t, 31, s.TotalDays())
	assert.False(t, s.IsSingleDay())
	assert.True(t, core.SingleDay(day("2023-03-01")).IsSingleDay())

	assert.True(t, s.IsExpired(day("2023-04-01")))
	assert.False(t, s.IsExpired(day("2023-03-31")))
	assert.True(t, s.IsFuture(day("2023-02-28")))
	assert.False(t, s.IsFuture(day("2023-03-01")))
}

func TestSpan_RejectsNonPositiveDuration(t *testing.T) {
	_, err := core.NewSpan(day("2023-03-01"), core.Days(0))
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrInvalidInterval)

	var ivErr *core.IntervalError
	require.ErrorAs(t, err, &ivErr)
	assert.Equal(t, day("2023-03-01"), ivErr.Start)

	_, err = core.NewSpan(day("2023-03-01"), core.Days(-3))
	assert.ErrorIs(t, err, core.ErrInvalidInterval)
}

func TestSpan_CurrentOccurrenceIffWithin(t *testing.T) {
	s := span(t, "2023-03-10", core.Days(5))

	for _, tol := range []int{0, 2, 5} {
		for d := day("2023-02-28"); d.Before(day("2023-03-25")); d = d.AddDays(1) {
			_, ok := s.CurrentOccurrence(d, tol, tol)
			assert.Equal(t, s.IsWithin(d, tol, tol), ok, "date %s tolerance %d", d, tol)
		}
	}

	assert.True(t, s.IsWithin(day("2023-03-08"), 2, 0))
	assert.False(t, s.IsWithin(day("2023-03-07"), 2, 0))
	assert.True(t, s.IsWithin(day("2023-03-15"), 0, 1))
}

func TestSpan_NextAndLastOccurrence(t *testing.T) {
	s := core.SingleDay(day("2023-03-10"))

	next, ok := s.NextOccurrence(day("2023-03-09"))
	require.True(t, ok)
	assert.Equal(t, s, next)

	_, ok = s.NextOccurrence(day("2023-03-10"))
	assert.False(t, ok, "next occurrence is strictly after the date")

	last, ok := s.LastOccurrence(day("2023-03-10"))
	require.True(t, ok)
	assert.Equal(t, s, last)

	_, ok = s.LastOccurrence(day("2023-03-09"))
	assert.False(t, ok)
}

// =============================================================================
// PERIODIC SPAN
// =============================================================================

func TestPeriodicSpan_Validation(t *testing.T) {
	base := span(t, "2023-01-01", core.Days(10))

	_, err := core.NewPeriodicSpan(base, core.Days(0), core.Date{})
	assert.ErrorIs(t, err, core.ErrInvalidInterval, "zero period")

	_, err = core.NewPeriodicSpan(base, core.Weeks(1), core.Date{})
	assert.ErrorIs(t, err, core.ErrInvalidInterval, "duration longer than period")

	_, err = core.NewPeriodicSpan(base, core.Months(1), day("2022-12-31"))
	assert.ErrorIs(t, err, core.ErrInvalidInterval, "expiration before start")

	p, err := core.NewPeriodicSpan(base, core.Months(1), core.Date{})
	require.NoError(t, err)
	assert.True(t, p.IsUnbounded())
	assert.Equal(t, core.Forever, p.LastDate())
}

func TestPeriodicSpan_Occurrences_MonthEnd(t *testing.T) {
	// GIVEN: A monthly recurrence on January 31st
	// WHEN: Iterating occurrences
	// THEN: Each one is computed from the first start, clamped per month

	p := monthly(t, "2023-01-31")

	var starts []core.Date
	for occ := range p.Occurrences() {
		starts = append(starts, occ.InitialDate())
		if len(starts) == 4 {
			break
		}
	}
	assert.Equal(t, []core.Date{day("2023-01-31"), day("2023-02-28"), day("2023-03-31"), day("2023-04-30")}, starts)
}

func TestPeriodicSpan_Occurrences_StopAtExpiration(t *testing.T) {
	p := periodic(t, "2023-01-01", core.Days(1), core.Months(1), "2023-03-15")

	count := 0
	for range p.Occurrences() {
		count++
	}
	assert.Equal(t, 3, count)
}

func TestPeriodicSpan_OccurrencesFrom_SkipsAhead(t *testing.T) {
	// GIVEN: A biennial recurrence starting in 2000
	// WHEN: Iterating from mid-2100
	// THEN: The first occurrence is the one starting before that date

	p, err := core.Every(day("2000-01-01"), core.Years(2))
	require.NoError(t, err)

	var got []core.Date
	for occ := range p.OccurrencesFrom(day("2100-06-01")) {
		got = append(got, occ.InitialDate())
		if len(got) == 2 {
			break
		}
	}
	assert.Equal(t, []core.Date{day("2100-01-01"), day("2102-01-01")}, got)
}

func TestPeriodicSpan_OccurrencesFrom_Restartable(t *testing.T) {
	p := monthly(t, "2023-01-01")
	seq := p.OccurrencesFrom(day("2023-03-10"))

	first := func() core.Date {
		for occ := range seq {
			return occ.InitialDate()
		}
		return core.Date{}
	}
	assert.Equal(t, day("2023-03-01"), first())
	assert.Equal(t, day("2023-03-01"), first())
}

func TestPeriodicSpan_AtMostOneOccurrenceContainsDate(t *testing.T) {
	p := periodic(t, "2023-01-02", core.Days(7), core.Weeks(1), "2023-06-30")

	for d := day("2023-01-02"); d.Before(day("2023-06-20")); d = d.AddDays(1) {
		containing := 0
		for occ := range p.Occurrences() {
			if occ.Contains(d) {
				containing++
			}
		}
		assert.Equal(t, 1, containing, "date %s", d)
	}
}

func TestPeriodicSpan_CurrentOccurrence_WithTolerance(t *testing.T) {
	p := monthly(t, "2023-01-01")

	occ, ok := p.CurrentOccurrence(day("2023-02-27"), 5, 5)
	require.True(t, ok)
	assert.Equal(t, day("2023-03-01"), occ.InitialDate())

	occ, ok = p.CurrentOccurrence(day("2023-02-04"), 5, 5)
	require.True(t, ok)
	assert.Equal(t, day("2023-02-01"), occ.InitialDate())

	_, ok = p.CurrentOccurrence(day("2023-02-15"), 5, 5)
	assert.False(t, ok)

	_, ok = p.CurrentOccurrence(day("2022-12-20"), 5, 5)
	assert.False(t, ok, "before the first occurrence")
}

func TestPeriodicSpan_NextAndLastOccurrence(t *testing.T) {
	p := monthly(t, "2023-01-01")

	next, ok := p.NextOccurrence(day("2023-03-01"))
	require.True(t, ok)
	assert.Equal(t, day("2023-04-01"), next.InitialDate())

	last, ok := p.LastOccurrence(day("2023-03-01"))
	require.True(t, ok)
	assert.Equal(t, day("2023-03-01"), last.InitialDate())

	_, ok = p.LastOccurrence(day("2022-12-31"))
	assert.False(t, ok)

	bounded := periodic(t, "2023-01-01", core.Days(1), core.Months(1), "2023-03-15")
	_, ok = bounded.NextOccurrence(day("2023-03-01"))
	assert.False(t, ok, "no occurrence after expiration")
}

// =============================================================================
// REPLACE / SPLIT
// =============================================================================

func TestReplace_InitialDateRoundTrip(t *testing.T) {
	x := day("2024-07-14")
	intervals := []core.Interval{
		span(t, "2023-03-01", core.Months(1)),
		monthly(t, "2023-01-31"),
		periodic(t, "2023-01-01", core.Days(10), core.Months(1), "2025-01-01"),
	}
	for _, iv := range intervals {
		moved, err := core.WithInitialDate(iv, x)
		require.NoError(t, err, iv.String())
		assert.Equal(t, x, moved.InitialDate(), iv.String())
		assert.Equal(t, core.IsPeriodic(iv), core.IsPeriodic(moved))
		assert.True(t, core.OccurrenceDuration(iv).Equal(core.OccurrenceDuration(moved)))
	}
}

func TestPeriodicSpan_Replace(t *testing.T) {
	p := monthly(t, "2023-01-01")
	period := core.Weeks(2)
	exp := day("2023-06-30")

	q, err := p.Replace(core.PeriodicPatch{Period: &period, Expiration: &exp})
	require.NoError(t, err)
	assert.True(t, q.Period().Equal(core.Weeks(2)))
	assert.Equal(t, exp, q.Expiration())
	assert.Equal(t, p.InitialDate(), q.InitialDate())

	long := core.Months(2)
	_, err = p.Replace(core.PeriodicPatch{Duration: &long})
	assert.ErrorIs(t, err, core.ErrInvalidInterval)
}

func TestPeriodicSpan_SplitAt(t *testing.T) {
	// GIVEN: A monthly recurrence
	// WHEN: Splitting mid-March
	// THEN: The old series ends the day before April 1st, the new one starts then

	p := periodic(t, "2023-01-01", core.Days(1), core.Months(1), "2023-12-31")

	terminated, continuation, err := p.SplitAt(day("2023-03-15"))
	require.NoError(t, err)

	assert.Equal(t, day("2023-03-31"), terminated.LastDate())
	assert.Equal(t, day("2023-04-01"), continuation.InitialDate())
	assert.Equal(t, continuation.InitialDate().AddDays(-1), terminated.LastDate())
	assert.Equal(t, day("2023-12-31"), continuation.Expiration())
	assert.Equal(t, p.InitialDate(), terminated.InitialDate())

	_, _, err = p.SplitAt(day("2023-01-01"))
	assert.ErrorIs(t, err, core.ErrInvalidInterval, "cannot split at the first occurrence")

	_, _, err = p.SplitAt(day("2024-06-01"))
	assert.ErrorIs(t, err, core.ErrInvalidInterval, "no occurrence after the split date")
}

func TestHasOccurrenceOn(t *testing.T) {
	p := monthly(t, "2023-01-15")
	assert.True(t, core.HasOccurrenceOn(p, day("2023-04-15")))
	assert.False(t, core.HasOccurrenceOn(p, day("2023-04-16")))
	assert.False(t, core.HasOccurrenceOn(p, day("2022-12-15")))
	assert.True(t, core.HasOccurrenceOn(core.SingleDay(day("2023-02-01")), day("2023-02-01")))
}

func TestIntervalsEqualAndCompare(t *testing.T) {
	a := monthly(t, "2023-01-01")
	b := monthly(t, "2023-01-01")
	c := periodic(t, "2023-01-01", core.Days(1), core.Months(12), "")
	d := periodic(t, "2023-01-01", core.Days(1), core.Years(1), "")

	assert.True(t, core.IntervalsEqual(a, b))
	assert.False(t, core.IntervalsEqual(a, c))
	assert.True(t, core.IntervalsEqual(c, d), "12 months equals 1 year")
	assert.False(t, core.IntervalsEqual(core.SingleDay(day("2023-01-01")), a))

	assert.Equal(t, -1, core.CompareIntervals(core.SingleDay(day("2023-01-01")), a))
	assert.Equal(t, 1, core.CompareIntervals(monthly(t, "2023-02-01"), a))
}
