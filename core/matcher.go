/*
matcher.go - Heuristic matching of historic operations to declared ranges

PURPOSE:
  Decides whether a recorded operation realizes a planned operation or
  consumes a budget, and scores how good a candidate pairing is.

MATCHING RULES:
  An operation matches a range when it is already linked to it, or when
  all of these hold:
    - its date falls in an occurrence widened by ApproximationDays
    - its amount is within ApproximationAmountRatio of the range amount
    - its category equals the range category
    - every description hint appears in its description (if any hints)

SCORING (0-100):
  amount 40, date 30, category 20, description 10. Each component decays
  linearly outside its tolerance. MatchScore is the only scoring routine;
  link suggestion and candidate ranking both use it.

SEE ALSO:
  - links.go: LinkIndex feeding matchers, heuristic link creation
  - reconcile.go: Uses links rather than heuristics
*/
package core

import (
	"math"
	"slices"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	scoreAmount      = 40.0
	scoreDate        = 30.0
	scoreCategory    = 20.0
	scoreDescription = 10.0

	// Days past the tolerance after which the date component reaches zero.
	dateDecayDays = 30.0
)

// Matcher binds one range to the links pointing at it. The link map is
// copied and never written afterwards.
type Matcher struct {
	kind  RangeKind
	id    RangeID
	rng   OperationRange
	links map[OperationID]Date
}

// NewMatcher builds a matcher for r. links maps linked operation ids to the
// occurrence start they are linked to; see LinkIndex.ForTarget.
func NewMatcher(r DeclaredRange, links map[OperationID]Date) *Matcher {
	copied := make(map[OperationID]Date, len(links))
	for id, d := range links {
		copied[id] = d
	}
	return &Matcher{kind: r.Kind(), id: r.RangeID(), rng: r.Range(), links: copied}
}

func (m *Matcher) Range() OperationRange { return m.rng }
func (m *Matcher) Kind() RangeKind { return m.kind }
func (m *Matcher) RangeID() RangeID { return m.id }

func (m *Matcher) approxDays() int { return m.rng.Matcher.ApproximationDays }

// =============================================================================
// PREDICATES
// =============================================================================

func (m *Matcher) IsLinked(op HistoricOperation) bool {
	_, ok := m.links[op.ID]
	return ok
}

// IterationFor returns the occurrence start op is linked to.
func (m *Matcher) IterationFor(op HistoricOperation) (Date, bool) {
	d, ok := m.links[op.ID]
	return d, ok
}

// MatchDescription is false when no hints are configured.
func (m *Matcher) MatchDescription(op HistoricOperation) bool {
	hints := m.rng.Matcher.DescriptionHints
	if len(hints) == 0 {
		return false
	}
	for _, h := range hints {
		if !strings.Contains(op.Description, h) {
			return false
		}
	}
	return true
}

func (m *Matcher) MatchAmount(op HistoricOperation) bool {
	return amountWithinRatio(op.Amount, m.rng.Amount, m.rng.Matcher.ApproximationAmountRatio)
}

func amountWithinRatio(actual, expected Amount, ratio float64) bool {
	if actual.Currency != expected.Currency {
		return false
	}
	if math.IsInf(ratio, 1) {
		return true
	}
	diff := actual.Value.Sub(expected.Value).Abs()
	return diff.LessThanOrEqual(expected.Value.Abs().Mul(decimal.NewFromFloat(ratio)))
}

func (m *Matcher) MatchCategory(op HistoricOperation) bool {
	return op.Category == m.rng.Category
}

func (m *Matcher) MatchDateRange(op HistoricOperation) bool {
	approx := m.approxDays()
	return m.rng.Interval.IsWithin(op.Date, approx, approx)
}

// outOfRange is a cheap rejection before walking occurrences.
func (m *Matcher) outOfRange(op HistoricOperation) bool {
	approx := m.approxDays()
	iv := m.rng.Interval
	return op.Date.Before(iv.InitialDate().AddDays(-approx)) || op.Date.After(iv.LastDate().AddDays(approx))
}

func (m *Matcher) Match(op HistoricOperation) bool {
	if m.IsLinked(op) {
		return true
	}
	if m.outOfRange(op) {
		return false
	}
	if len(m.rng.Matcher.DescriptionHints) > 0 && !m.MatchDescription(op) {
		return false
	}
	return m.MatchAmount(op) && m.MatchCategory(op) && m.MatchDateRange(op)
}

// Matches keeps the operations that match, sorted by date then id.
func (m *Matcher) Matches(ops []HistoricOperation) []HistoricOperation {
	var out []HistoricOperation
	for _, op := range ops {
		if m.Match(op) {
			out = append(out, op)
		}
	}
	SortOperations(out)
	return out
}

// =============================================================================
// LATE & ANTICIPATED OCCURRENCES
// =============================================================================

// LateOccurrences returns occurrences that started before current, whose
// tolerance window still covers current, and that no matching operation
// realized. Each matching operation realizes at most one occurrence.
func (m *Matcher) LateOccurrences(current Date, ops []HistoricOperation) []Span {
	approx := m.approxDays()
	pool := m.Matches(ops)

	var late []Span
	for occ := range m.rng.Interval.OccurrencesFrom(current.AddDays(-approx)) {
		if !occ.InitialDate().Before(current) {
			break
		}
		if !occ.IsWithin(current, 0, approx) {
			continue
		}
		if i := slices.IndexFunc(pool, func(op HistoricOperation) bool {
			return occ.IsWithin(op.Date, approx, approx)
		}); i >= 0 {
			pool = slices.Delete(pool, i, i+1)
			continue
		}
		late = append(late, occ)
	}
	return late
}

// AnticipatedOccurrence pairs a future occurrence with the operation that
// already realized it.
type AnticipatedOccurrence struct {
	Occurrence Span
	Operation  HistoricOperation
}

// AnticipatedOccurrences returns future occurrences starting within the
// tolerance of current that a matching operation dated in the last
// tolerance days already satisfied.
func (m *Matcher) AnticipatedOccurrences(current Date, ops []HistoricOperation) []AnticipatedOccurrence {
	approx := m.approxDays()
	var pool []HistoricOperation
	for _, op := range m.Matches(ops) {
		if !op.Date.After(current) && !op.Date.Before(current.AddDays(-approx)) {
			pool = append(pool, op)
		}
	}
	if len(pool) == 0 {
		return nil
	}

	var out []AnticipatedOccurrence
	for occ := range m.rng.Interval.OccurrencesFrom(current.AddDays(-approx)) {
		if !occ.IsFuture(current) {
			continue
		}
		if occ.InitialDate().AddDays(-approx).After(current) {
			break
		}
		if i := slices.IndexFunc(pool, func(op HistoricOperation) bool {
			return occ.IsWithin(op.Date, approx, 0)
		}); i >= 0 {
			out = append(out, AnticipatedOccurrence{Occurrence: occ, Operation: pool[i]})
			pool = slices.Delete(pool, i, i+1)
		}
	}
	return out
}

// =============================================================================
// SCORING
// =============================================================================

// Score rates op against the occurrence starting at iteration.
func (m *Matcher) Score(op HistoricOperation, iteration Date) float64 {
	return MatchScore(op, m.rng, iteration)
}

// MatchScore rates how well op fits the occurrence of rng starting at
// iteration, from 0 to 100.
func MatchScore(op HistoricOperation, rng OperationRange, iteration Date) float64 {
	params := rng.Matcher
	score := 0.0

	if !rng.Amount.IsZero() && op.Amount.Currency == rng.Amount.Currency {
		expected := rng.Amount.Value.Abs()
		diff, _ := op.Amount.Value.Abs().Sub(expected).Abs().Div(expected).Float64()
		if diff <= params.ApproximationAmountRatio {
			score += scoreAmount
		} else {
			score += math.Max(0, scoreAmount*(1-(diff-params.ApproximationAmountRatio)))
		}
	}

	daysOff := float64(abs(op.Date.DaysUntil(iteration)))
	tolerance := float64(params.ApproximationDays)
	if daysOff <= tolerance {
		score += scoreDate
	} else {
		score += math.Max(0, scoreDate*(1-(daysOff-tolerance)/dateDecayDays))
	}

	if op.Category == rng.Category {
		score += scoreCategory
	}

	if len(params.DescriptionHints) > 0 {
		all := true
		for _, h := range params.DescriptionHints {
			if !strings.Contains(op.Description, h) {
				all = false
				break
			}
		}
		if all {
			score += scoreDescription
		}
	}
	return score
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
