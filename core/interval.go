/*
interval.go - Calendar intervals, one-off and periodic

PURPOSE:
  Every planned operation and budget is attached to an Interval. An
  interval is either a Span (one contiguous run of days) or a PeriodicSpan
  (a Span repeated every period until an optional expiration).

KEY CONCEPTS:
  - Occurrence: one concrete Span of a periodic interval. Occurrence n
    starts at base.start + n*period, always computed from the first start
    so "monthly on the 31st" lands on Jan 31, Feb 29, Mar 31.
  - Tolerance: containment checks can widen an interval by a number of
    days before its start and after its end.
  - Forever: an unbounded PeriodicSpan ends on Forever.

INVARIANTS:
  - LastDate >= InitialDate for every interval.
  - Occurrences of a PeriodicSpan never overlap and are yielded ascending.
  - Values are immutable; Replace and SplitAt return new intervals.

SEE ALSO:
  - date.go: Date and Delta arithmetic
  - matcher.go: Tolerance-based matching against occurrences
  - reconcile.go: Advances intervals past the balance date
*/
package core

import (
	"fmt"
	"iter"
)

// Interval is implemented by Span and PeriodicSpan only.
type Interval interface {
	InitialDate() Date
	LastDate() Date

	// IsExpired reports whether the interval ended before d.
	IsExpired(d Date) bool
	// IsFuture reports whether the interval starts after d.
	IsFuture(d Date) bool
	// IsWithin reports whether d falls inside the interval once it is
	// widened by before days at the start and after days at the end.
	IsWithin(d Date, before, after int) bool
	Contains(d Date) bool

	// Occurrences yields every occurrence in ascending order.
	Occurrences() iter.Seq[Span]
	// OccurrencesFrom yields occurrences starting with the last one that
	// begins before from, so the occurrence containing from is included.
	OccurrencesFrom(from Date) iter.Seq[Span]

	CurrentOccurrence(d Date, before, after int) (Span, bool)
	NextOccurrence(d Date) (Span, bool)
	LastOccurrence(d Date) (Span, bool)

	String() string

	isInterval()
}

// =============================================================================
// SPAN - Contiguous run of days
// =============================================================================

type Span struct {
	start    Date
	duration Delta
}

func NewSpan(start Date, duration Delta) (Span, error) {
	if !start.Add(duration).After(start) {
		return Span{}, &IntervalError{Reason: fmt.Sprintf("duration %s must be positive", duration), Start: start}
	}
	return Span{start: start, duration: duration.normalize()}, nil
}

// SpanBetween builds the span covering first..last inclusive.
func SpanBetween(first, last Date) (Span, error) {
	return NewSpan(first, Days(first.DaysUntil(last)+1))
}

// SingleDay is the one-day span used by one-off planned operations.
func SingleDay(d Date) Span {
	return Span{start: d, duration: Days(1)}
}

func (s Span) isInterval() {}

func (s Span) InitialDate() Date { return s.start }
func (s Span) LastDate() Date { return s.start.Add(s.duration).AddDays(-1) }
func (s Span) Duration() Delta { return s.duration }

// TotalDays is the number of calendar days covered, always >= 1.
func (s Span) TotalDays() int { return s.start.DaysUntil(s.LastDate()) + 1 }

func (s Span) IsSingleDay() bool { return s.TotalDays() == 1 }

func (s Span) IsExpired(d Date) bool { return s.LastDate().Before(d) }
func (s Span) IsFuture(d Date) bool { return s.start.After(d) }

func (s Span) IsWithin(d Date, before, after int) bool {
	return s.start.AddDays(-before).BeforeOrEqual(d) && d.BeforeOrEqual(s.LastDate().AddDays(after))
}

func (s Span) Contains(d Date) bool { return s.IsWithin(d, 0, 0) }

func (s Span) Occurrences() iter.Seq[Span] { return s.OccurrencesFrom(s.start) }

func (s Span) OccurrencesFrom(Date) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		yield(s)
	}
}

func (s Span) CurrentOccurrence(d Date, before, after int) (Span, bool) {
	if s.IsWithin(d, before, after) {
		return s, true
	}
	return Span{}, false
}

func (s Span) NextOccurrence(d Date) (Span, bool) {
	if s.IsFuture(d) {
		return s, true
	}
	return Span{}, false
}

func (s Span) LastOccurrence(d Date) (Span, bool) {
	if !s.IsFuture(d) {
		return s, true
	}
	return Span{}, false
}

// SpanPatch lists the fields a Span can be rebuilt with. Nil keeps the
// current value.
type SpanPatch struct {
	InitialDate *Date
	Duration    *Delta
}

func (s Span) Replace(p SpanPatch) (Span, error) {
	start, duration := s.start, s.duration
	if p.InitialDate != nil {
		start = *p.InitialDate
	}
	if p.Duration != nil {
		duration = *p.Duration
	}
	return NewSpan(start, duration)
}

func (s Span) String() string {
	return "[" + s.start.String() + ", " + s.LastDate().String() + "]"
}

// =============================================================================
// PERIODIC SPAN - Span repeated every period
// =============================================================================

type PeriodicSpan struct {
	base       Span
	period     Delta
	expiration Date
}

// NewPeriodicSpan repeats base every period. A zero expiration means the
// interval never ends.
func NewPeriodicSpan(base Span, period Delta, expiration Date) (PeriodicSpan, error) {
	start := base.InitialDate()
	if expiration.IsZero() {
		expiration = Forever
	}
	if !start.Add(period).After(start) {
		return PeriodicSpan{}, &IntervalError{Reason: fmt.Sprintf("period %s must be positive", period), Start: start}
	}
	if start.Add(base.duration).After(start.Add(period)) {
		return PeriodicSpan{}, &IntervalError{
			Reason: fmt.Sprintf("duration %s exceeds period %s", base.duration, period),
			Start:  start,
		}
	}
	if expiration.Before(start) {
		return PeriodicSpan{}, &IntervalError{Reason: "expiration " + expiration.String() + " before start", Start: start}
	}
	return PeriodicSpan{base: base, period: period.normalize(), expiration: expiration}, nil
}

// Every is shorthand for an unbounded single-day recurrence.
func Every(start Date, period Delta) (PeriodicSpan, error) {
	return NewPeriodicSpan(SingleDay(start), period, Date{})
}

func (p PeriodicSpan) isInterval() {}

func (p PeriodicSpan) InitialDate() Date { return p.base.start }
func (p PeriodicSpan) LastDate() Date { return p.expiration }
func (p PeriodicSpan) Base() Span { return p.base }
func (p PeriodicSpan) Period() Delta { return p.period }
func (p PeriodicSpan) Duration() Delta { return p.base.duration }
func (p PeriodicSpan) Expiration() Date { return p.expiration }
func (p PeriodicSpan) IsUnbounded() bool { return p.expiration.IsForever() }

func (p PeriodicSpan) IsExpired(d Date) bool { return p.expiration.Before(d) }
func (p PeriodicSpan) IsFuture(d Date) bool { return p.base.start.After(d) }

func (p PeriodicSpan) IsWithin(d Date, before, after int) bool {
	_, ok := p.CurrentOccurrence(d, before, after)
	return ok
}

func (p PeriodicSpan) Contains(d Date) bool { return p.IsWithin(d, 0, 0) }

func (p PeriodicSpan) occurrence(n int) Span {
	return Span{start: p.base.start.Add(p.period.Times(n)), duration: p.base.duration}
}

// firstIndexFrom returns the index of the last occurrence starting before
// from, or 0. The approximate period length over-estimates, so the jump
// never overshoots and the walk forward is short.
func (p PeriodicSpan) firstIndexFrom(from Date) int {
	n := 0
	if diff := p.base.start.DaysUntil(from); diff > 0 {
		n = max(0, diff/p.period.approxDays()-1)
	}
	for p.occurrence(n + 1).start.Before(from) {
		n++
	}
	return n
}

func (p PeriodicSpan) Occurrences() iter.Seq[Span] { return p.OccurrencesFrom(p.base.start) }

func (p PeriodicSpan) OccurrencesFrom(from Date) iter.Seq[Span] {
	return func(yield func(Span) bool) {
		for n := p.firstIndexFrom(from); ; n++ {
			occ := p.occurrence(n)
			if occ.LastDate().After(p.expiration) {
				return
			}
			if !yield(occ) {
				return
			}
		}
	}
}

func (p PeriodicSpan) CurrentOccurrence(d Date, before, after int) (Span, bool) {
	for occ := range p.OccurrencesFrom(d.AddDays(-after)) {
		if occ.IsWithin(d, before, after) {
			return occ, true
		}
		if occ.start.AddDays(-before).After(d) {
			break
		}
	}
	return Span{}, false
}

func (p PeriodicSpan) NextOccurrence(d Date) (Span, bool) {
	for occ := range p.OccurrencesFrom(d) {
		if occ.IsFuture(d) {
			return occ, true
		}
	}
	return Span{}, false
}

func (p PeriodicSpan) LastOccurrence(d Date) (Span, bool) {
	var last Span
	found := false
	for occ := range p.OccurrencesFrom(d) {
		if occ.IsFuture(d) {
			break
		}
		last, found = occ, true
	}
	return last, found
}

// PeriodicPatch lists the fields a PeriodicSpan can be rebuilt with.
// Expiration set to the zero Date makes the interval unbounded.
type PeriodicPatch struct {
	InitialDate *Date
	Duration    *Delta
	Period      *Delta
	Expiration  *Date
}

func (p PeriodicSpan) Replace(patch PeriodicPatch) (PeriodicSpan, error) {
	base, err := p.base.Replace(SpanPatch{InitialDate: patch.InitialDate, Duration: patch.Duration})
	if err != nil {
		return PeriodicSpan{}, err
	}
	period, expiration := p.period, p.expiration
	if patch.Period != nil {
		period = *patch.Period
	}
	if patch.Expiration != nil {
		expiration = *patch.Expiration
	}
	return NewPeriodicSpan(base, period, expiration)
}

// SplitAt cuts the interval at the first occurrence starting on or after d.
// The terminated part expires the day before that occurrence and the
// continuation starts on it, keeping the original expiration.
func (p PeriodicSpan) SplitAt(d Date) (terminated, continuation PeriodicSpan, err error) {
	if !d.After(p.base.start) {
		return PeriodicSpan{}, PeriodicSpan{}, &IntervalError{
			Reason: "split date " + d.String() + " must be after the first occurrence",
			Start:  p.base.start,
		}
	}
	var first Span
	found := false
	for occ := range p.OccurrencesFrom(d) {
		if occ.start.AfterOrEqual(d) {
			first, found = occ, true
			break
		}
	}
	if !found {
		return PeriodicSpan{}, PeriodicSpan{}, &IntervalError{
			Reason: "no occurrence on or after " + d.String(),
			Start:  p.base.start,
		}
	}

	terminated = p
	terminated.expiration = first.start.AddDays(-1)
	continuation = p
	continuation.base.start = first.start
	return terminated, continuation, nil
}

func (p PeriodicSpan) String() string {
	until := "forever"
	if !p.IsUnbounded() {
		until = "until " + p.expiration.String()
	}
	return fmt.Sprintf("%s every %s %s", p.base, p.period, until)
}

// =============================================================================
// VARIANT-GENERIC HELPERS
// =============================================================================

// WithInitialDate moves the start of any interval, keeping its shape.
func WithInitialDate(iv Interval, d Date) (Interval, error) {
	switch v := iv.(type) {
	case Span:
		return v.Replace(SpanPatch{InitialDate: &d})
	case PeriodicSpan:
		return v.Replace(PeriodicPatch{InitialDate: &d})
	default:
		panic(fmt.Sprintf("core: unknown interval type %T", iv))
	}
}

// IntervalsEqual compares variant, start, duration, period and expiration.
func IntervalsEqual(a, b Interval) bool {
	switch x := a.(type) {
	case Span:
		y, ok := b.(Span)
		return ok && x.start.Equal(y.start) && x.duration.Equal(y.duration)
	case PeriodicSpan:
		y, ok := b.(PeriodicSpan)
		return ok && IntervalsEqual(x.base, y.base) &&
			x.period.Equal(y.period) && x.expiration.Equal(y.expiration)
	default:
		return false
	}
}

// CompareIntervals orders by initial date, then last date.
func CompareIntervals(a, b Interval) int {
	if c := a.InitialDate().Compare(b.InitialDate()); c != 0 {
		return c
	}
	return a.LastDate().Compare(b.LastDate())
}

// IsPeriodic reports whether iv repeats.
func IsPeriodic(iv Interval) bool {
	_, ok := iv.(PeriodicSpan)
	return ok
}

// OccurrenceDuration is the length of one occurrence of iv.
func OccurrenceDuration(iv Interval) Delta {
	switch v := iv.(type) {
	case Span:
		return v.duration
	case PeriodicSpan:
		return v.base.duration
	default:
		panic(fmt.Sprintf("core: unknown interval type %T", iv))
	}
}

// HasOccurrenceOn reports whether an occurrence of iv starts exactly on d.
func HasOccurrenceOn(iv Interval, d Date) bool {
	for occ := range iv.OccurrencesFrom(d) {
		if occ.start.Equal(d) {
			return true
		}
		if occ.start.After(d) {
			break
		}
	}
	return false
}
