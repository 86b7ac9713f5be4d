package core

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Day-granular calendar date (all forecasting happens at day level)
// =============================================================================

type Date struct {
	t time.Time
}

// Forever is the open end of an unbounded periodic interval.
var Forever = NewDate(9999, time.December, 31)

const dateLayout = "2006-01-02"

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date { return NewDate(t.Year(), t.Month(), t.Day()) }

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func MustParseDate(s string) Date {
	d, err := ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Comparison
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool { return !d.t.After(o.t) }
func (d Date) AfterOrEqual(o Date) bool { return !d.t.Before(o.t) }

func (d Date) Compare(o Date) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	}
	return 0
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Add applies a calendar delta. Years and months move first and clamp the
// day to the end of the target month, then days are added.
func (d Date) Add(delta Delta) Date {
	months := delta.Years*12 + delta.Months
	t := d.t
	if months != 0 {
		total := int(t.Month()) - 1 + months
		year := t.Year() + floorDiv(total, 12)
		month := time.Month(floorMod(total, 12) + 1)
		day := t.Day()
		if last := daysIn(year, month); day > last {
			day = last
		}
		t = time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	}
	return Date{t: t.AddDate(0, 0, delta.Days)}
}

// DaysUntil returns the signed number of days from d to o.
func (d Date) DaysUntil(o Date) int {
	return int((o.t.Unix() - d.t.Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

// Properties
func (d Date) Year() int { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int { return d.t.Day() }
func (d Date) Time() time.Time { return d.t }
func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) String() string { return d.t.Format(dateLayout) }
func (d Date) IsForever() bool { return !d.Before(Forever) }

func (d Date) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Date) UnmarshalText(b []byte) error {
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func MinDate(a, b Date) Date {
	if a.Before(b) {
		return a
	}
	return b
}

func MaxDate(a, b Date) Date {
	if a.After(b) {
		return a
	}
	return b
}

func StartOfMonth(year int, month time.Month) Date { return NewDate(year, month, 1) }

func EndOfMonth(year int, month time.Month) Date {
	return NewDate(year, month, daysIn(year, month))
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func floorMod(a, b int) int { return a - floorDiv(a, b)*b }

// =============================================================================
// DELTA - Calendar offset (durations and periods of intervals)
// =============================================================================

// Delta is a calendar-aware offset. Months are normalized into years, so
// Months(12) and Years(1) are the same delta.
type Delta struct {
	Years  int `json:"years,omitempty"`
	Months int `json:"months,omitempty"`
	Days   int `json:"days,omitempty"`
}

func Days(n int) Delta { return Delta{Days: n} }
func Weeks(n int) Delta { return Delta{Days: 7 * n} }
func Months(n int) Delta { return Delta{Months: n}.normalize() }
func Years(n int) Delta { return Delta{Years: n} }

func (d Delta) normalize() Delta {
	months := d.Years*12 + d.Months
	years := months / 12
	return Delta{Years: years, Months: months - years*12, Days: d.Days}
}

// Times scales every field by n. Occurrence n of a periodic interval is
// start.Add(period.Times(n)), always computed from the first start.
func (d Delta) Times(n int) Delta {
	return Delta{Years: d.Years * n, Months: d.Months * n, Days: d.Days * n}.normalize()
}

func (d Delta) Equal(o Delta) bool { return d.normalize() == o.normalize() }

func (d Delta) IsZero() bool { return d.Years == 0 && d.Months == 0 && d.Days == 0 }

// approxDays over-estimates the delta's length in days. Used to skip ahead
// when iterating periodic intervals.
func (d Delta) approxDays() int { return d.Years*366 + d.Months*31 + d.Days }

func (d Delta) String() string {
	n := d.normalize()
	switch {
	case n.IsZero():
		return "0d"
	case n.Years == 0 && n.Months == 0 && n.Days%7 == 0:
		return fmt.Sprintf("%dw", n.Days/7)
	}
	s := ""
	if n.Years != 0 {
		s += fmt.Sprintf("%dy", n.Years)
	}
	if n.Months != 0 {
		s += fmt.Sprintf("%dm", n.Months)
	}
	if n.Days != 0 {
		s += fmt.Sprintf("%dd", n.Days)
	}
	return s
}
